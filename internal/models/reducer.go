package models

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"session-scribe/internal/domain"
)

const (
	// progressInterval and progressStep bound how often progress refinements
	// reach the store. Transition events are never throttled.
	progressInterval = 300 * time.Millisecond
	progressStep     = 5
)

type throttleMark struct {
	appliedAt time.Time
	progress  int
}

// Reducer folds raw engine events into store updates, one write per applied
// event. Events for the same artifact must be fed in arrival order.
type Reducer struct {
	store   *Store
	intents *IntentLog
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	marks map[string]throttleMark
}

// NewReducer creates a reducer writing through to the given store and
// clearing intent records on terminal events.
func NewReducer(store *Store, intents *IntentLog, log *zap.Logger) *Reducer {
	return &Reducer{
		store:   store,
		intents: intents,
		log:     log,
		now:     time.Now,
		marks:   make(map[string]throttleMark),
	}
}

// Apply folds one engine event into at most one store update.
func (r *Reducer) Apply(ev Event) {
	switch ev.Kind {
	case EventStarted:
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateAcquiring})
	case EventProgress:
		pct := progressPercent(ev.DownloadedBytes, ev.TotalBytes)
		if pct >= 100 {
			// The terminal event that follows carries the final transition.
			return
		}
		if !r.admitProgress(ev.ArtifactID, pct) {
			return
		}
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateAcquiring, Progress: pct})
	case EventCompleted:
		r.clearMarks(ev.ArtifactID)
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateAvailable})
		r.clearIntent(ev.ArtifactID)
	case EventError:
		r.clearMarks(ev.ArtifactID)
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateError, Message: ev.Message})
		r.clearIntent(ev.ArtifactID)
	case EventCancelled:
		r.clearMarks(ev.ArtifactID)
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateCancelled})
		r.apply(ev.ArtifactID, domain.ArtifactStatus{State: domain.StateNotAcquired})
		r.clearIntent(ev.ArtifactID)
	default:
		r.log.Warn("unknown engine event kind",
			zap.String("artifact", ev.ArtifactID),
			zap.String("kind", string(ev.Kind)))
	}
}

// apply writes a status along a valid edge; illegal transitions from
// out-of-order or duplicate events are dropped rather than corrupting state.
func (r *Reducer) apply(id string, status domain.ArtifactStatus) {
	if err := r.store.Transition(id, status); err != nil {
		r.log.Warn("dropping engine event", zap.String("artifact", id), zap.Error(err))
	}
}

// admitProgress decides whether a progress refinement passes the throttle:
// it applies when at least progressInterval elapsed since the last applied
// update, or the percentage moved by progressStep or more.
func (r *Reducer) admitProgress(id string, pct int) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	mark, seen := r.marks[id]
	if seen {
		elapsed := now.Sub(mark.appliedAt)
		moved := pct - mark.progress
		if moved < 0 {
			moved = -moved
		}
		if elapsed < progressInterval && moved < progressStep {
			return false
		}
	}

	r.marks[id] = throttleMark{appliedAt: now, progress: pct}
	return true
}

// clearMarks drops throttle bookkeeping for an artifact so a later retry
// starts with a clean window.
func (r *Reducer) clearMarks(id string) {
	r.mu.Lock()
	delete(r.marks, id)
	r.mu.Unlock()
}

func (r *Reducer) clearIntent(id string) {
	if err := r.intents.Delete(id); err != nil {
		r.log.Warn("clear intent record", zap.String("artifact", id), zap.Error(err))
	}
}

func progressPercent(downloaded, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(downloaded * 100 / total)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
