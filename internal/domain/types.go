package domain

import "time"

// ModelFamily tags which download backend handles an artifact.
type ModelFamily string

const (
	FamilyWhisper    ModelFamily = "whisper"
	FamilyParakeet   ModelFamily = "parakeet"
	FamilySummarizer ModelFamily = "summarizer"
)

// Families lists every artifact family the app manages.
func Families() []ModelFamily {
	return []ModelFamily{FamilyWhisper, FamilyParakeet, FamilySummarizer}
}

// ArtifactState enumerates lifecycle states for one model artifact.
type ArtifactState string

const (
	StateNotAcquired ArtifactState = "not_acquired"
	StateAcquiring   ArtifactState = "acquiring"
	StateAvailable   ArtifactState = "available"
	StateCancelled   ArtifactState = "cancelled"
	StateError       ArtifactState = "error"
	StateCorrupted   ArtifactState = "corrupted"
)

// ArtifactStatus is the full per-artifact status read by observers. Progress
// is meaningful only while acquiring; Message only for errors.
type ArtifactStatus struct {
	State    ArtifactState `json:"state"`
	Progress int           `json:"progress,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// Artifact describes one downloadable model.
type Artifact struct {
	ID                string      `json:"id"`
	Family            ModelFamily `json:"family"`
	Name              string      `json:"name"`
	FileName          string      `json:"fileName"`
	URL               string      `json:"url"`
	DeclaredSizeBytes int64       `json:"declaredSizeBytes,omitempty"`
	Description       string      `json:"description,omitempty"`
}

// DiskState is the catalog's ground truth about bytes on disk.
type DiskState string

const (
	DiskMissing   DiskState = "missing"
	DiskAvailable DiskState = "available"
	DiskCorrupted DiskState = "corrupted"
)

// CatalogEntry pairs an artifact with what is actually on disk.
type CatalogEntry struct {
	Artifact   Artifact  `json:"artifact"`
	DiskState  DiskState `json:"diskState"`
	LocalPath  string    `json:"localPath,omitempty"`
	SizeOnDisk int64     `json:"sizeOnDisk,omitempty"`
}

// DownloadSnapshot reports live transfer numbers for one download session.
// Speed is derived from elapsed time and is not authoritative.
type DownloadSnapshot struct {
	ArtifactID       string    `json:"artifactId"`
	SessionID        string    `json:"sessionId"`
	StartedAt        time.Time `json:"startedAt"`
	BytesDownloaded  int64     `json:"bytesDownloaded"`
	BytesTotal       int64     `json:"bytesTotal"`
	SpeedBytesPerSec int64     `json:"speedBytesPerSec"`
}

// ModelView merges catalog, status, and live transfer data for observers.
type ModelView struct {
	Artifact  Artifact          `json:"artifact"`
	Status    ArtifactStatus    `json:"status"`
	LocalPath string            `json:"localPath,omitempty"`
	Download  *DownloadSnapshot `json:"download,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelsDir   string `json:"modelsDir"`
	CatalogPath string `json:"catalogPath,omitempty"`
	LogLevel    string `json:"logLevel,omitempty"`
}
