package models

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"session-scribe/internal/domain"
)

type fakeEngine struct {
	mu       sync.Mutex
	events   chan Event
	startErr error
	started  []string
	cancels  []string
	deletes  []string
	onStart  func(artifactID string)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{events: make(chan Event, 16)}
}

func (e *fakeEngine) Start(artifactID string) error {
	e.mu.Lock()
	hook := e.onStart
	err := e.startErr
	if err == nil {
		e.started = append(e.started, artifactID)
	}
	e.mu.Unlock()

	if hook != nil {
		hook(artifactID)
	}
	return err
}

func (e *fakeEngine) Cancel(artifactID string) error {
	e.mu.Lock()
	e.cancels = append(e.cancels, artifactID)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Delete(artifactID string) error {
	e.mu.Lock()
	e.deletes = append(e.deletes, artifactID)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Events() <-chan Event { return e.events }

func (e *fakeEngine) emit(ev Event) { e.events <- ev }

type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]domain.CatalogEntry
}

func newFakeCatalog(ids ...string) *fakeCatalog {
	c := &fakeCatalog{entries: make(map[string]domain.CatalogEntry)}
	for _, id := range ids {
		c.entries[id] = domain.CatalogEntry{
			Artifact: domain.Artifact{
				ID:                id,
				Family:            domain.FamilyWhisper,
				Name:              id,
				FileName:          id + ".bin",
				URL:               "https://models.example/" + id,
				DeclaredSizeBytes: 100 << 20,
			},
			DiskState: domain.DiskMissing,
		}
	}
	return c
}

func (c *fakeCatalog) ListKnownArtifacts() ([]domain.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	return out, nil
}

func (c *fakeCatalog) setDisk(id string, state domain.DiskState) {
	c.mu.Lock()
	entry := c.entries[id]
	entry.DiskState = state
	c.entries[id] = entry
	c.mu.Unlock()
}

type managerFixture struct {
	manager *Manager
	engine  *fakeEngine
	catalog *fakeCatalog
	intents *IntentLog
	store   *Store
}

func newManagerFixture(t *testing.T, ids ...string) *managerFixture {
	t.Helper()

	intents, err := NewIntentLog(filepath.Join(t.TempDir(), "intents.json"))
	if err != nil {
		t.Fatalf("new intent log: %v", err)
	}

	store := NewStore()
	engine := newFakeEngine()
	catalog := newFakeCatalog(ids...)
	manager := NewManager(store, intents, catalog,
		map[domain.ModelFamily]Engine{domain.FamilyWhisper: engine}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}

	return &managerFixture{manager: manager, engine: engine, catalog: catalog, intents: intents, store: store}
}

// waitFor polls until the condition holds or the test deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestManagerDownloadHappyPath drives a download through engine events to
// available and checks the intent record is gone at the end.
func TestManagerDownloadHappyPath(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if got := f.manager.GetStatus("whisper-base").State; got != domain.StateAcquiring {
		t.Fatalf("state after admission = %s, want %s", got, domain.StateAcquiring)
	}

	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventStarted})
	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventProgress, DownloadedBytes: 40 << 20, TotalBytes: 100 << 20})
	f.catalog.setDisk("whisper-base", domain.DiskAvailable)
	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventCompleted})

	waitFor(t, "available state", func() bool {
		return f.manager.GetStatus("whisper-base").State == domain.StateAvailable
	})
	waitFor(t, "intent cleared", func() bool {
		return !f.intents.Has("whisper-base")
	})
}

// TestManagerRejectsDuplicateDownload checks a second request while a session
// is live fails with a distinguishable error and starts no second transfer.
func TestManagerRejectsDuplicateDownload(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := f.manager.RequestDownload("whisper-base"); !errors.Is(err, ErrDownloadInProgress) {
		t.Fatalf("second request error = %v, want ErrDownloadInProgress", err)
	}

	f.engine.mu.Lock()
	starts := len(f.engine.started)
	f.engine.mu.Unlock()
	if starts != 1 {
		t.Fatalf("engine started %d times, want 1", starts)
	}
}

// TestManagerRejectsUnknownArtifact checks admission fails for ids the
// catalog does not know.
func TestManagerRejectsUnknownArtifact(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("no-such-model"); !errors.Is(err, ErrUnknownArtifact) {
		t.Fatalf("error = %v, want ErrUnknownArtifact", err)
	}
}

// TestManagerPersistsIntentBeforeEngineStart verifies the durable record
// exists by the time the engine is called.
func TestManagerPersistsIntentBeforeEngineStart(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	var hadIntent bool
	f.engine.onStart = func(id string) { hadIntent = f.intents.Has(id) }

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if !hadIntent {
		t.Fatal("engine started before intent was persisted")
	}
}

// TestManagerCancelResolvesToNotAcquired drives the cancel path: the request
// only flags the session, and the engine's cancelled event settles the state.
func TestManagerCancelResolvesToNotAcquired(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if err := f.manager.CancelDownload("whisper-base"); err != nil {
		t.Fatalf("cancel download: %v", err)
	}

	// State holds until the engine confirms.
	if got := f.manager.GetStatus("whisper-base").State; got != domain.StateAcquiring {
		t.Fatalf("state right after cancel request = %s, want %s", got, domain.StateAcquiring)
	}

	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventCancelled})

	waitFor(t, "not_acquired after cancel", func() bool {
		return f.manager.GetStatus("whisper-base").State == domain.StateNotAcquired
	})
	if got := f.manager.GetStatus("whisper-base").Message; got != "" {
		t.Fatalf("cancel left an error message: %q", got)
	}
}

// TestManagerCancelWithoutSessionFails checks cancelling an idle artifact
// returns ErrNoActiveDownload.
func TestManagerCancelWithoutSessionFails(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.CancelDownload("whisper-base"); !errors.Is(err, ErrNoActiveDownload) {
		t.Fatalf("error = %v, want ErrNoActiveDownload", err)
	}
}

// TestManagerRemapsErrorAfterCancelRequest checks an engine that reports its
// abort as an error still resolves to not_acquired, never to error.
func TestManagerRemapsErrorAfterCancelRequest(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if err := f.manager.CancelDownload("whisper-base"); err != nil {
		t.Fatalf("cancel download: %v", err)
	}

	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventError, Message: "context canceled"})

	waitFor(t, "not_acquired after remapped error", func() bool {
		return f.manager.GetStatus("whisper-base").State == domain.StateNotAcquired
	})
}

// TestManagerSyncStartFailureRollsBack checks a failing engine start surfaces
// an error state, clears the intent, and leaves the artifact retryable.
func TestManagerSyncStartFailureRollsBack(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")
	f.engine.startErr = errors.New("disk full")

	if err := f.manager.RequestDownload("whisper-base"); err == nil {
		t.Fatal("expected request to fail")
	}

	status := f.manager.GetStatus("whisper-base")
	if status.State != domain.StateError {
		t.Fatalf("state = %s, want %s", status.State, domain.StateError)
	}
	if f.intents.Has("whisper-base") {
		t.Fatal("intent record survived rollback")
	}

	// A retry admits cleanly once the engine recovers.
	f.engine.startErr = nil
	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("retry after rollback: %v", err)
	}
}

// TestManagerDeleteRefusesLiveSession checks delete fails while a download is
// in flight.
func TestManagerDeleteRefusesLiveSession(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if err := f.manager.DeleteArtifact("whisper-base"); !errors.Is(err, ErrDownloadInProgress) {
		t.Fatalf("error = %v, want ErrDownloadInProgress", err)
	}
}

// TestManagerDeleteFlipsToNotAcquired drives delete for a downloaded model.
func TestManagerDeleteFlipsToNotAcquired(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")
	f.catalog.setDisk("whisper-base", domain.DiskAvailable)
	if err := f.manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	f.catalog.setDisk("whisper-base", domain.DiskMissing)
	if err := f.manager.DeleteArtifact("whisper-base"); err != nil {
		t.Fatalf("delete artifact: %v", err)
	}

	if got := f.manager.GetStatus("whisper-base").State; got != domain.StateNotAcquired {
		t.Fatalf("state = %s, want %s", got, domain.StateNotAcquired)
	}
	f.engine.mu.Lock()
	deletes := len(f.engine.deletes)
	f.engine.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("engine delete called %d times, want 1", deletes)
	}
}

// TestReconcileRecoversFinishedDownload simulates a crash after the bytes
// landed: a surviving intent plus disk truth resolves to available.
func TestReconcileRecoversFinishedDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.json")
	seed, err := NewIntentLog(path)
	if err != nil {
		t.Fatalf("seed intent log: %v", err)
	}
	if err := seed.Put("whisper-base", time.Now()); err != nil {
		t.Fatalf("seed intent: %v", err)
	}

	intents, err := NewIntentLog(path)
	if err != nil {
		t.Fatalf("reload intent log: %v", err)
	}
	catalog := newFakeCatalog("whisper-base")
	catalog.setDisk("whisper-base", domain.DiskAvailable)
	manager := NewManager(NewStore(), intents, catalog,
		map[domain.ModelFamily]Engine{domain.FamilyWhisper: newFakeEngine()}, zap.NewNop())

	if err := manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := manager.GetStatus("whisper-base").State; got != domain.StateAvailable {
		t.Fatalf("state = %s, want %s", got, domain.StateAvailable)
	}
	if intents.Has("whisper-base") {
		t.Fatal("stale intent survived reconciliation")
	}
}

// TestReconcileResolvesLostDownload simulates a crash mid-transfer: intent
// survives but no bytes exist, so status settles at not_acquired, not a
// zombie acquiring.
func TestReconcileResolvesLostDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.json")
	seed, err := NewIntentLog(path)
	if err != nil {
		t.Fatalf("seed intent log: %v", err)
	}
	if err := seed.Put("whisper-base", time.Now()); err != nil {
		t.Fatalf("seed intent: %v", err)
	}

	intents, err := NewIntentLog(path)
	if err != nil {
		t.Fatalf("reload intent log: %v", err)
	}
	manager := NewManager(NewStore(), intents, newFakeCatalog("whisper-base"),
		map[domain.ModelFamily]Engine{domain.FamilyWhisper: newFakeEngine()}, zap.NewNop())

	if err := manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := manager.GetStatus("whisper-base").State; got != domain.StateNotAcquired {
		t.Fatalf("state = %s, want %s", got, domain.StateNotAcquired)
	}
	if intents.Has("whisper-base") {
		t.Fatal("lost-download intent not cleared")
	}
}

// TestReconcilePreservesErrorWithoutIntent checks a remembered failure is not
// flattened to not_acquired when disk truth does not contradict it.
func TestReconcilePreservesErrorWithoutIntent(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventError, Message: "404 from mirror"})

	waitFor(t, "error state", func() bool {
		return f.manager.GetStatus("whisper-base").State == domain.StateError
	})

	if err := f.manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	status := f.manager.GetStatus("whisper-base")
	if status.State != domain.StateError || status.Message != "404 from mirror" {
		t.Fatalf("reconcile flattened error status: %+v", status)
	}
}

// TestReconcileDetectsCorruption checks catalog corruption truth overrides a
// remembered available status.
func TestReconcileDetectsCorruption(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")
	f.catalog.setDisk("whisper-base", domain.DiskAvailable)
	if err := f.manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	f.catalog.setDisk("whisper-base", domain.DiskCorrupted)
	if err := f.manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := f.manager.GetStatus("whisper-base").State; got != domain.StateCorrupted {
		t.Fatalf("state = %s, want %s", got, domain.StateCorrupted)
	}
}

// TestReconcileSkipsLiveSession checks reconciliation does not clobber an
// artifact that currently has a download in flight.
func TestReconcileSkipsLiveSession(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	if err := f.manager.Reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := f.manager.GetStatus("whisper-base").State; got != domain.StateAcquiring {
		t.Fatalf("reconcile clobbered live session: %s", got)
	}
	if !f.intents.Has("whisper-base") {
		t.Fatal("reconcile cleared the live session's intent")
	}
}

// TestManagerListModelsSorted verifies the merged view is ordered and carries
// a download snapshot only for live sessions.
func TestManagerListModelsSorted(t *testing.T) {
	f := newManagerFixture(t, "whisper-small", "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}

	views, err := f.manager.ListModels()
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d views, want 2", len(views))
	}
	if views[0].Artifact.ID != "whisper-base" || views[1].Artifact.ID != "whisper-small" {
		t.Fatalf("order = %s, %s", views[0].Artifact.ID, views[1].Artifact.ID)
	}
	if views[0].Download == nil {
		t.Fatal("live session missing download snapshot")
	}
	if views[1].Download != nil {
		t.Fatal("idle artifact carries a download snapshot")
	}
}

// TestManagerEventsFeedCatchesUp checks the sequenced feed lets a late
// subscriber replay transitions it missed.
func TestManagerEventsFeedCatchesUp(t *testing.T) {
	f := newManagerFixture(t, "whisper-base")

	if err := f.manager.RequestDownload("whisper-base"); err != nil {
		t.Fatalf("request download: %v", err)
	}
	f.engine.emit(Event{ArtifactID: "whisper-base", Kind: EventCompleted})

	waitFor(t, "available event on feed", func() bool {
		for _, ev := range f.manager.Events(0) {
			if ev.ArtifactID == "whisper-base" && ev.Status.State == domain.StateAvailable {
				return true
			}
		}
		return false
	})
}
