package models

import (
	"fmt"

	"go.uber.org/zap"

	"session-scribe/internal/domain"
)

// Reconcile merges catalog truth, the durable intent log, and in-memory
// status into one authoritative status per artifact. It runs at startup,
// after every terminal event, and on observer refresh, so a kill -9
// mid-download or a remount during an active transfer converges to the
// correct status without user intervention.
//
// Rules, in order:
//   - a live session owns its artifact; engine events will land its outcome
//   - catalog truth wins for available and corrupted (bytes verifiably exist)
//   - a surviving intent with nothing on disk is a lost download, resolved to
//     not acquired instead of freezing in acquiring forever
//   - without an intent, a remembered error survives a missing file, since
//     the message carries the retry affordance and disk truth does not
//     contradict it
func (m *Manager) Reconcile() error {
	entries, err := m.catalog.ListKnownArtifacts()
	if err != nil {
		return fmt.Errorf("list known artifacts: %w", err)
	}

	m.mu.Lock()
	m.artifacts = make(map[string]domain.Artifact, len(entries))
	m.paths = make(map[string]string, len(entries))
	live := make(map[string]bool, len(m.sessions))
	for id := range m.sessions {
		live[id] = true
	}
	for _, entry := range entries {
		m.artifacts[entry.Artifact.ID] = entry.Artifact
		if entry.LocalPath != "" {
			m.paths[entry.Artifact.ID] = entry.LocalPath
		}
	}
	m.mu.Unlock()

	for _, entry := range entries {
		id := entry.Artifact.ID
		if live[id] {
			continue
		}

		hadIntent := m.intents.Has(id)

		switch entry.DiskState {
		case domain.DiskAvailable:
			if hadIntent {
				m.log.Info("download finished while nothing was listening",
					zap.String("artifact", id))
			}
			m.setIfChanged(id, domain.ArtifactStatus{State: domain.StateAvailable})
		case domain.DiskCorrupted:
			m.setIfChanged(id, domain.ArtifactStatus{State: domain.StateCorrupted})
		default:
			if hadIntent {
				m.log.Info("stale download intent resolved as lost",
					zap.String("artifact", id))
				m.setIfChanged(id, domain.ArtifactStatus{State: domain.StateNotAcquired})
				break
			}
			if m.store.Get(id).State != domain.StateError {
				m.setIfChanged(id, domain.ArtifactStatus{State: domain.StateNotAcquired})
			}
		}

		if hadIntent {
			m.reducer.clearMarks(id)
			if err := m.intents.Delete(id); err != nil {
				m.log.Warn("clear stale intent record",
					zap.String("artifact", id), zap.Error(err))
			}
		}
	}

	// Intent records for artifacts the catalog no longer knows are stale by
	// definition.
	known := make(map[string]bool, len(entries))
	for _, entry := range entries {
		known[entry.Artifact.ID] = true
	}
	for id := range m.intents.All() {
		if known[id] {
			continue
		}
		if live[id] {
			continue
		}
		if err := m.intents.Delete(id); err != nil {
			m.log.Warn("drop unknown intent record",
				zap.String("artifact", id), zap.Error(err))
		}
	}

	return nil
}

// setIfChanged writes a status only when it differs, keeping reconciliation
// quiet for subscribers when nothing moved.
func (m *Manager) setIfChanged(id string, status domain.ArtifactStatus) {
	if m.store.Get(id) == status {
		return
	}
	m.store.Set(id, status)
}
