package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"session-scribe/internal/domain"
	"session-scribe/internal/models"
)

const (
	downloadTimeout = 45 * time.Minute
	emitInterval    = 100 * time.Millisecond
	copyBufferSize  = 128 * 1024
	eventBufferSize = 256
)

// Resolver maps an artifact id to its download source and file name.
type Resolver interface {
	Resolve(artifactID string) (domain.Artifact, bool)
}

// HTTP downloads artifacts over plain GET into a models directory. Transfers
// stream into a .download temp file and move into place only on success, so
// a crash or cancellation never leaves a half-written artifact under its
// final name. All transfers share one event stream.
type HTTP struct {
	dir      string
	resolver Resolver
	client   *http.Client
	log      *zap.Logger
	events   chan models.Event

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewHTTP creates an engine writing artifacts for one family into dir.
func NewHTTP(dir string, resolver Resolver, log *zap.Logger) *HTTP {
	return &HTTP{
		dir:      dir,
		resolver: resolver,
		client:   &http.Client{},
		log:      log,
		events:   make(chan models.Event, eventBufferSize),
		active:   make(map[string]context.CancelFunc),
	}
}

// Events returns the shared event stream for all artifacts.
func (h *HTTP) Events() <-chan models.Event {
	return h.events
}

// Start begins one transfer. It fails synchronously for unknown artifacts
// and is a no-op when the artifact is already transferring; the outcome
// arrives on Events.
func (h *HTTP) Start(artifactID string) error {
	artifact, ok := h.resolver.Resolve(artifactID)
	if !ok {
		return fmt.Errorf("unknown artifact: %s", artifactID)
	}
	if artifact.URL == "" {
		return fmt.Errorf("artifact %s has no download URL", artifactID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)

	h.mu.Lock()
	if _, running := h.active[artifactID]; running {
		h.mu.Unlock()
		cancel()
		return nil
	}
	h.active[artifactID] = cancel
	h.mu.Unlock()

	go h.transfer(ctx, cancel, artifact)
	return nil
}

// Cancel requests cancellation of an in-flight transfer. It is safe to call
// when nothing is in flight.
func (h *HTTP) Cancel(artifactID string) error {
	h.mu.Lock()
	cancel, running := h.active[artifactID]
	h.mu.Unlock()

	if running {
		cancel()
	}
	return nil
}

// Delete removes a completed artifact from disk. A missing file counts as
// already deleted.
func (h *HTTP) Delete(artifactID string) error {
	artifact, ok := h.resolver.Resolve(artifactID)
	if !ok {
		return fmt.Errorf("unknown artifact: %s", artifactID)
	}

	path := filepath.Join(h.dir, artifact.FileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact file: %w", err)
	}
	return nil
}

func (h *HTTP) transfer(ctx context.Context, cancel context.CancelFunc, artifact domain.Artifact) {
	defer cancel()
	defer h.clearActive(artifact.ID)

	h.emit(models.Event{
		ArtifactID: artifact.ID,
		Kind:       models.EventStarted,
		TotalBytes: artifact.DeclaredSizeBytes,
	})

	downloaded, total, err := h.download(ctx, artifact)
	switch {
	case err == nil:
		h.log.Info("download complete",
			zap.String("artifact", artifact.ID), zap.Int64("bytes", downloaded))
		h.emit(models.Event{
			ArtifactID:      artifact.ID,
			Kind:            models.EventCompleted,
			DownloadedBytes: downloaded,
			TotalBytes:      total,
		})
	case errors.Is(err, context.Canceled):
		h.log.Info("download cancelled", zap.String("artifact", artifact.ID))
		h.emit(models.Event{ArtifactID: artifact.ID, Kind: models.EventCancelled})
	default:
		h.log.Warn("download failed",
			zap.String("artifact", artifact.ID), zap.Error(err))
		h.emit(models.Event{
			ArtifactID: artifact.ID,
			Kind:       models.EventError,
			Message:    err.Error(),
		})
	}
}

// download streams the artifact into a temp file and renames it into place.
// It returns the byte counts for the terminal event.
func (h *HTTP) download(ctx context.Context, artifact domain.Artifact) (downloaded, total int64, err error) {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("prepare models directory: %w", err)
	}

	destination := filepath.Join(h.dir, artifact.FileName)
	tmpPath := destination + ".download"
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, 0, fmt.Errorf("remove stale temp file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifact.URL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "session-scribe")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, 0, context.Canceled
		}
		return 0, 0, fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("unexpected HTTP status: %s", resp.Status)
	}

	total = resp.ContentLength
	if total <= 0 {
		total = artifact.DeclaredSizeBytes
	}

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, total, fmt.Errorf("create temporary file: %w", err)
	}

	downloaded, copyErr := h.copyWithProgress(ctx, file, resp.Body, artifact.ID, total)
	closeErr := file.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(copyErr, context.Canceled) {
			return downloaded, total, context.Canceled
		}
		return downloaded, total, fmt.Errorf("write artifact file: %w", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return downloaded, total, fmt.Errorf("close artifact file: %w", closeErr)
	}

	if err := os.Remove(destination); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = os.Remove(tmpPath)
		return downloaded, total, fmt.Errorf("remove old artifact file: %w", err)
	}
	if err := os.Rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return downloaded, total, fmt.Errorf("move artifact into place: %w", err)
	}

	return downloaded, total, nil
}

// copyWithProgress copies the body while emitting raw progress events, at
// most one per emitInterval. The reducer applies its own throttle; this cap
// only keeps the channel from flooding on fast local links.
func (h *HTTP) copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, artifactID string, total int64) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var downloaded int64
	lastEmit := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return downloaded, writeErr
			}
			downloaded += int64(n)

			if time.Since(lastEmit) >= emitInterval {
				lastEmit = time.Now()
				h.emit(models.Event{
					ArtifactID:      artifactID,
					Kind:            models.EventProgress,
					DownloadedBytes: downloaded,
					TotalBytes:      total,
				})
			}
		}
		if readErr == io.EOF {
			return downloaded, nil
		}
		if readErr != nil {
			return downloaded, readErr
		}
	}
}

func (h *HTTP) emit(ev models.Event) {
	h.events <- ev
}

func (h *HTTP) clearActive(artifactID string) {
	h.mu.Lock()
	delete(h.active, artifactID)
	h.mu.Unlock()
}
