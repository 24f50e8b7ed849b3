package models

import (
	"fmt"
	"sync"

	"session-scribe/internal/domain"
)

// ValidTransition reports whether moving between two artifact states follows
// a legal state machine edge. Re-writing the same state is always allowed so
// duplicate terminal events stay idempotent.
func ValidTransition(from, to domain.ArtifactState) bool {
	if from == to {
		return true
	}

	switch from {
	case domain.StateNotAcquired:
		return to == domain.StateAcquiring
	case domain.StateAcquiring:
		return to == domain.StateAvailable || to == domain.StateError || to == domain.StateCancelled
	case domain.StateCancelled:
		return to == domain.StateNotAcquired
	case domain.StateAvailable:
		return to == domain.StateCorrupted || to == domain.StateNotAcquired
	case domain.StateError:
		return to == domain.StateAcquiring
	case domain.StateCorrupted:
		return to == domain.StateAcquiring || to == domain.StateNotAcquired
	default:
		return false
	}
}

type subscriber struct {
	artifactID string // empty means all artifacts
	notify     func(artifactID string)
}

// Store is the single source of truth for per-artifact status. Every status
// write is a total overwrite of the full value, so concurrent writers can
// never produce a torn state.
type Store struct {
	mu       sync.RWMutex
	statuses map[string]domain.ArtifactStatus
	subs     map[int]subscriber
	nextSub  int
}

// NewStore creates an empty store; unknown artifacts read as not acquired.
func NewStore() *Store {
	return &Store{
		statuses: make(map[string]domain.ArtifactStatus),
		subs:     make(map[int]subscriber),
	}
}

// Get returns the current status for an artifact.
func (s *Store) Get(id string) domain.ArtifactStatus {
	s.mu.RLock()
	status, ok := s.statuses[id]
	s.mu.RUnlock()

	if !ok {
		return domain.ArtifactStatus{State: domain.StateNotAcquired}
	}
	return status
}

// Set overwrites the full status for an artifact, last writer wins, and
// notifies subscribers. Callers that must respect state machine edges go
// through Transition instead; Set is reserved for authoritative writes such
// as reconciliation against catalog truth.
func (s *Store) Set(id string, status domain.ArtifactStatus) {
	s.mu.Lock()
	s.statuses[id] = status
	notify := s.matching(id)
	s.mu.Unlock()

	for _, fn := range notify {
		fn(id)
	}
}

// Transition applies a status only along a valid state machine edge.
func (s *Store) Transition(id string, status domain.ArtifactStatus) error {
	s.mu.Lock()
	current, ok := s.statuses[id]
	if !ok {
		current = domain.ArtifactStatus{State: domain.StateNotAcquired}
	}
	if !ValidTransition(current.State, status.State) {
		s.mu.Unlock()
		return fmt.Errorf("invalid transition: %s -> %s", current.State, status.State)
	}
	s.statuses[id] = status
	notify := s.matching(id)
	s.mu.Unlock()

	for _, fn := range notify {
		fn(id)
	}
	return nil
}

// List returns a copy of all known artifact statuses.
func (s *Store) List() map[string]domain.ArtifactStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.ArtifactStatus, len(s.statuses))
	for id, status := range s.statuses {
		out[id] = status
	}
	return out
}

// Subscribe registers a change callback for one artifact, or for all when id
// is empty. Callbacks receive only the artifact id; readers pull the current
// status via Get so they never act on a captured snapshot. The returned
// function removes the subscription.
func (s *Store) Subscribe(id string, notify func(artifactID string)) func() {
	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = subscriber{artifactID: id, notify: notify}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}

// matching collects notify callbacks for an artifact. Caller holds mu.
func (s *Store) matching(id string) []func(string) {
	out := make([]func(string), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.artifactID == "" || sub.artifactID == id {
			out = append(out, sub.notify)
		}
	}
	return out
}
