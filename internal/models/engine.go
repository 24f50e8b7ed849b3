package models

import "session-scribe/internal/domain"

// EventKind classifies messages emitted by a download engine.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	EventError     EventKind = "error"
)

// Event is one message on a download engine's shared stream. Events for the
// same artifact arrive in order; cross-artifact ordering carries no meaning.
type Event struct {
	ArtifactID      string
	Kind            EventKind
	DownloadedBytes int64
	TotalBytes      int64
	Message         string
}

// IsTerminal reports whether the event ends a download session.
func (e Event) IsTerminal() bool {
	switch e.Kind {
	case EventCompleted, EventCancelled, EventError:
		return true
	default:
		return false
	}
}

// Engine is the download backend boundary. Start and Cancel return once the
// operation is admitted or rejected; outcomes arrive later on Events.
type Engine interface {
	Start(artifactID string) error
	Cancel(artifactID string) error
	Delete(artifactID string) error
	Events() <-chan Event
}

// Catalog supplies the known artifacts and their on-disk ground truth.
type Catalog interface {
	ListKnownArtifacts() ([]domain.CatalogEntry, error)
}
