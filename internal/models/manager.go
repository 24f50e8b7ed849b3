package models

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"session-scribe/internal/domain"
)

// ErrDownloadInProgress is returned when an artifact already has a live
// download session.
var ErrDownloadInProgress = errors.New("download already in progress")

// ErrNoActiveDownload is returned when cancel is requested for an artifact
// with no live session.
var ErrNoActiveDownload = errors.New("no active download")

// ErrUnknownArtifact is returned for ids the catalog does not know.
var ErrUnknownArtifact = errors.New("unknown artifact")

// session is the private bookkeeping for one in-flight download. Exactly
// zero or one live session exists per artifact, enforced by admission.
type session struct {
	id              string
	artifactID      string
	family          domain.ModelFamily
	startedAt       time.Time
	cancelRequested bool
	bytesDownloaded int64
	bytesTotal      int64
}

// Manager is the admission and cancellation authority for model downloads.
// It owns all download sessions, feeds engine events through the reducer,
// and reconciles persisted intent against catalog truth.
type Manager struct {
	store   *Store
	intents *IntentLog
	reducer *Reducer
	catalog Catalog
	engines map[domain.ModelFamily]Engine
	bus     *EventBus
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*session
	artifacts map[string]domain.Artifact
	paths     map[string]string
}

// NewManager wires the store, intent log, catalog, and per-family engines
// into one manager. Call Start to launch event pumps and reconcile.
func NewManager(store *Store, intents *IntentLog, catalog Catalog, engines map[domain.ModelFamily]Engine, log *zap.Logger) *Manager {
	m := &Manager{
		store:     store,
		intents:   intents,
		reducer:   NewReducer(store, intents, log),
		catalog:   catalog,
		engines:   engines,
		bus:       NewEventBus(1000),
		log:       log,
		now:       time.Now,
		sessions:  make(map[string]*session),
		artifacts: make(map[string]domain.Artifact),
		paths:     make(map[string]string),
	}

	store.Subscribe("", func(id string) {
		m.bus.Publish(ModelEvent{ArtifactID: id, Status: store.Get(id)})
	})

	return m
}

// Start reconciles persisted state and launches one event pump per engine.
// Pumps stop when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Reconcile(); err != nil {
		return err
	}

	for _, engine := range m.engines {
		go m.pump(ctx, engine.Events())
	}
	return nil
}

func (m *Manager) pump(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ev)
		}
	}
}

// handle applies one engine event and, on a terminal outcome, retires the
// session and re-reconciles so intent log and store cannot drift.
func (m *Manager) handle(ev Event) {
	// An error arriving after the controller itself asked the engine to
	// cancel is the cancellation completing, not a transfer failure.
	if ev.Kind == EventError && m.cancelWasRequested(ev.ArtifactID) {
		ev = Event{ArtifactID: ev.ArtifactID, Kind: EventCancelled}
	}

	m.trackBytes(ev)
	m.reducer.Apply(ev)

	if ev.IsTerminal() {
		m.clearSession(ev.ArtifactID)
		if err := m.Reconcile(); err != nil {
			m.log.Warn("reconcile after terminal event",
				zap.String("artifact", ev.ArtifactID), zap.Error(err))
		}
	}
}

// RequestDownload admits one download for the artifact. It returns once the
// operation is admitted or rejected; completion is observed via status
// changes, never via this call.
func (m *Manager) RequestDownload(artifactID string) error {
	m.mu.Lock()
	if _, live := m.sessions[artifactID]; live {
		m.mu.Unlock()
		return ErrDownloadInProgress
	}

	artifact, ok := m.artifacts[artifactID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	engine, ok := m.engines[artifact.Family]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no engine registered for family %s", artifact.Family)
	}

	// Durable intent strictly before the engine call: a crash between the
	// two leaves a record reconciliation can resolve, never a finished
	// download the restarted app forgot about.
	if err := m.intents.Put(artifactID, m.now()); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist download intent: %w", err)
	}

	m.sessions[artifactID] = &session{
		id:         uuid.NewString(),
		artifactID: artifactID,
		family:     artifact.Family,
		startedAt:  m.now(),
		bytesTotal: artifact.DeclaredSizeBytes,
	}
	m.mu.Unlock()

	if err := m.store.Transition(artifactID, domain.ArtifactStatus{State: domain.StateAcquiring}); err != nil {
		m.rollbackAdmission(artifactID)
		return err
	}

	if err := engine.Start(artifactID); err != nil {
		m.rollbackAdmission(artifactID)
		m.store.Set(artifactID, domain.ArtifactStatus{State: domain.StateError, Message: err.Error()})
		return fmt.Errorf("start download: %w", err)
	}

	m.log.Info("download admitted",
		zap.String("artifact", artifactID), zap.String("family", string(artifact.Family)))
	return nil
}

// CancelDownload forwards a cancellation request to the engine. Only the
// engine's resulting cancelled event finalizes state; clearing it here would
// race a completion already in flight and could resurrect a cancelled state.
func (m *Manager) CancelDownload(artifactID string) error {
	m.mu.Lock()
	s, live := m.sessions[artifactID]
	if !live {
		m.mu.Unlock()
		return ErrNoActiveDownload
	}
	s.cancelRequested = true
	engine := m.engines[s.family]
	m.mu.Unlock()

	if err := engine.Cancel(artifactID); err != nil {
		return fmt.Errorf("cancel download: %w", err)
	}
	return nil
}

// DeleteArtifact removes a downloaded artifact from disk. It refuses while a
// session is live, and flips status only after the engine delete succeeds: a
// stale available status is safer than not-acquired masking bytes on disk.
func (m *Manager) DeleteArtifact(artifactID string) error {
	m.mu.Lock()
	if _, live := m.sessions[artifactID]; live {
		m.mu.Unlock()
		return ErrDownloadInProgress
	}

	artifact, ok := m.artifacts[artifactID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownArtifact, artifactID)
	}
	engine, ok := m.engines[artifact.Family]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no engine registered for family %s", artifact.Family)
	}
	m.mu.Unlock()

	if err := engine.Delete(artifactID); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}

	m.store.Set(artifactID, domain.ArtifactStatus{State: domain.StateNotAcquired})
	if err := m.intents.Delete(artifactID); err != nil {
		m.log.Warn("clear intent record after delete",
			zap.String("artifact", artifactID), zap.Error(err))
	}

	m.log.Info("artifact deleted", zap.String("artifact", artifactID))
	return nil
}

// GetStatus returns the current status for one artifact.
func (m *Manager) GetStatus(artifactID string) domain.ArtifactStatus {
	return m.store.Get(artifactID)
}

// Subscribe registers a status-change callback for one artifact, or for all
// when id is empty. The returned function removes the subscription.
func (m *Manager) Subscribe(artifactID string, notify func(artifactID string)) func() {
	return m.store.Subscribe(artifactID, notify)
}

// Events returns sequenced status changes newer than sinceSeq, for pull-based
// observers such as a remounting UI.
func (m *Manager) Events(sinceSeq int64) []ModelEvent {
	return m.bus.Since(sinceSeq)
}

// ListModels reconciles and returns the merged view of every known artifact,
// sorted by family then id.
func (m *Manager) ListModels() ([]domain.ModelView, error) {
	if err := m.Reconcile(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	views := make([]domain.ModelView, 0, len(m.artifacts))
	for id, artifact := range m.artifacts {
		view := domain.ModelView{
			Artifact:  artifact,
			Status:    m.store.Get(id),
			LocalPath: m.paths[id],
		}
		if s, live := m.sessions[id]; live {
			snapshot := m.snapshotLocked(s)
			view.Download = &snapshot
		}
		views = append(views, view)
	}
	m.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].Artifact.Family != views[j].Artifact.Family {
			return views[i].Artifact.Family < views[j].Artifact.Family
		}
		return views[i].Artifact.ID < views[j].Artifact.ID
	})
	return views, nil
}

// DownloadSnapshotFor returns live transfer numbers for an artifact, if a
// session exists.
func (m *Manager) DownloadSnapshotFor(artifactID string) (domain.DownloadSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, live := m.sessions[artifactID]
	if !live {
		return domain.DownloadSnapshot{}, false
	}
	return m.snapshotLocked(s), true
}

// snapshotLocked derives a snapshot with a speed estimate. Caller holds mu.
func (m *Manager) snapshotLocked(s *session) domain.DownloadSnapshot {
	snapshot := domain.DownloadSnapshot{
		ArtifactID:      s.artifactID,
		SessionID:       s.id,
		StartedAt:       s.startedAt,
		BytesDownloaded: s.bytesDownloaded,
		BytesTotal:      s.bytesTotal,
	}
	if elapsed := m.now().Sub(s.startedAt); elapsed > 0 {
		snapshot.SpeedBytesPerSec = int64(float64(s.bytesDownloaded) / elapsed.Seconds())
	}
	return snapshot
}

func (m *Manager) cancelWasRequested(artifactID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, live := m.sessions[artifactID]
	return live && s.cancelRequested
}

// trackBytes folds transfer numbers into the session. The engine may revise
// the total once the real content length is known.
func (m *Manager) trackBytes(ev Event) {
	if ev.Kind != EventProgress && ev.Kind != EventStarted {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, live := m.sessions[ev.ArtifactID]
	if !live {
		return
	}
	if ev.DownloadedBytes > 0 {
		s.bytesDownloaded = ev.DownloadedBytes
	}
	if ev.TotalBytes > 0 {
		s.bytesTotal = ev.TotalBytes
	}
}

func (m *Manager) clearSession(artifactID string) {
	m.mu.Lock()
	delete(m.sessions, artifactID)
	m.mu.Unlock()
}

func (m *Manager) rollbackAdmission(artifactID string) {
	if err := m.intents.Delete(artifactID); err != nil {
		m.log.Warn("rollback intent record",
			zap.String("artifact", artifactID), zap.Error(err))
	}
	m.clearSession(artifactID)
}
