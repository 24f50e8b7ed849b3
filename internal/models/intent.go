package models

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// IntentLog durably records which artifacts the user asked to download. A
// record is written strictly before the engine call that could outlive the
// process, and cleared only on a terminal outcome or when reconciliation
// decides it is stale. It is never cleared because an in-memory session was
// dropped.
type IntentLog struct {
	mu      sync.Mutex
	path    string
	entries map[string]time.Time
}

// NewIntentLog loads surviving records from path. A missing file is an empty
// log; an unreadable one is discarded, since reconciliation rebuilds status
// from catalog truth.
func NewIntentLog(path string) (*IntentLog, error) {
	log := &IntentLog{path: path, entries: make(map[string]time.Time)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return log, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, &log.entries); err != nil {
		log.entries = make(map[string]time.Time)
	}
	return log, nil
}

// Put persists a record before returning.
func (l *IntentLog) Put(artifactID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[artifactID] = at.UTC()
	return l.flush()
}

// Delete removes a record; deleting an absent record is a no-op.
func (l *IntentLog) Delete(artifactID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[artifactID]; !ok {
		return nil
	}
	delete(l.entries, artifactID)
	return l.flush()
}

// Has reports whether a record survives for the artifact.
func (l *IntentLog) Has(artifactID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.entries[artifactID]
	return ok
}

// All returns a copy of surviving records keyed by artifact id.
func (l *IntentLog) All() map[string]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]time.Time, len(l.entries))
	for id, at := range l.entries {
		out[id] = at
	}
	return out
}

// flush writes the full table through a temp file rename so a crash mid-write
// never leaves a torn log. Caller holds mu.
func (l *IntentLog) flush() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, l.path)
}
