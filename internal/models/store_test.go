package models

import (
	"testing"

	"session-scribe/internal/domain"
)

// TestStoreDefaultsToNotAcquired verifies unknown artifacts read as not
// acquired with no progress or message.
func TestStoreDefaultsToNotAcquired(t *testing.T) {
	s := NewStore()

	status := s.Get("whisper-base")
	if status.State != domain.StateNotAcquired {
		t.Fatalf("state = %s, want %s", status.State, domain.StateNotAcquired)
	}
	if status.Progress != 0 || status.Message != "" {
		t.Fatalf("default status carries data: %+v", status)
	}
}

// TestStoreSetOverwritesFullStatus checks that Set replaces the entire value,
// including fields the new status leaves zero.
func TestStoreSetOverwritesFullStatus(t *testing.T) {
	s := NewStore()

	s.Set("m", domain.ArtifactStatus{State: domain.StateAcquiring, Progress: 40})
	s.Set("m", domain.ArtifactStatus{State: domain.StateError, Message: "network unreachable"})

	status := s.Get("m")
	if status.State != domain.StateError {
		t.Fatalf("state = %s, want %s", status.State, domain.StateError)
	}
	if status.Progress != 0 {
		t.Fatalf("progress survived overwrite: %d", status.Progress)
	}
}

// TestStoreTransitionRejectsInvalidEdge checks state machine enforcement on
// the validated write path.
func TestStoreTransitionRejectsInvalidEdge(t *testing.T) {
	s := NewStore()

	if err := s.Transition("m", domain.ArtifactStatus{State: domain.StateAvailable}); err == nil {
		t.Fatal("expected error for not_acquired -> available")
	}
	if got := s.Get("m").State; got != domain.StateNotAcquired {
		t.Fatalf("state changed by rejected transition: %s", got)
	}

	if err := s.Transition("m", domain.ArtifactStatus{State: domain.StateAcquiring}); err != nil {
		t.Fatalf("transition to acquiring: %v", err)
	}
	if err := s.Transition("m", domain.ArtifactStatus{State: domain.StateAvailable}); err != nil {
		t.Fatalf("transition to available: %v", err)
	}
}

// TestValidTransitionTable pins the legal edges of the artifact state machine.
func TestValidTransitionTable(t *testing.T) {
	cases := []struct {
		from, to domain.ArtifactState
		want     bool
	}{
		{domain.StateNotAcquired, domain.StateAcquiring, true},
		{domain.StateNotAcquired, domain.StateAvailable, false},
		{domain.StateAcquiring, domain.StateAvailable, true},
		{domain.StateAcquiring, domain.StateError, true},
		{domain.StateAcquiring, domain.StateCancelled, true},
		{domain.StateAcquiring, domain.StateCorrupted, false},
		{domain.StateCancelled, domain.StateNotAcquired, true},
		{domain.StateCancelled, domain.StateAcquiring, false},
		{domain.StateAvailable, domain.StateCorrupted, true},
		{domain.StateAvailable, domain.StateNotAcquired, true},
		{domain.StateAvailable, domain.StateAcquiring, false},
		{domain.StateError, domain.StateAcquiring, true},
		{domain.StateError, domain.StateAvailable, false},
		{domain.StateCorrupted, domain.StateAcquiring, true},
		{domain.StateCorrupted, domain.StateNotAcquired, true},
		// Re-writing the same state stays legal so duplicate terminal
		// events are idempotent.
		{domain.StateAvailable, domain.StateAvailable, true},
		{domain.StateError, domain.StateError, true},
	}

	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

// TestStoreSubscribeFiltersAndUnsubscribes verifies per-artifact and wildcard
// subscriptions, and that the returned function stops delivery.
func TestStoreSubscribeFiltersAndUnsubscribes(t *testing.T) {
	s := NewStore()

	var one, all []string
	s.Subscribe("a", func(id string) { one = append(one, id) })
	unsub := s.Subscribe("", func(id string) { all = append(all, id) })

	s.Set("a", domain.ArtifactStatus{State: domain.StateAcquiring})
	s.Set("b", domain.ArtifactStatus{State: domain.StateAcquiring})

	if len(one) != 1 || one[0] != "a" {
		t.Fatalf("filtered subscriber saw %v, want [a]", one)
	}
	if len(all) != 2 {
		t.Fatalf("wildcard subscriber saw %d events, want 2", len(all))
	}

	unsub()
	s.Set("a", domain.ArtifactStatus{State: domain.StateError})
	if len(all) != 2 {
		t.Fatalf("unsubscribed callback still invoked, saw %d events", len(all))
	}
}

// TestStoreListCopiesState checks List returns a detached copy.
func TestStoreListCopiesState(t *testing.T) {
	s := NewStore()
	s.Set("m", domain.ArtifactStatus{State: domain.StateAvailable})

	list := s.List()
	list["m"] = domain.ArtifactStatus{State: domain.StateError}

	if got := s.Get("m").State; got != domain.StateAvailable {
		t.Fatalf("mutating List result changed store: %s", got)
	}
}
