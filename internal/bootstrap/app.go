package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"session-scribe/internal/catalog"
	"session-scribe/internal/config"
	"session-scribe/internal/diagnostics"
	"session-scribe/internal/domain"
	"session-scribe/internal/engine"
	"session-scribe/internal/logging"
	"session-scribe/internal/models"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// App wires settings, logging, catalogs, engines, and the model manager, and
// exposes them to the frontend as bound methods.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Manager     *models.Manager
	Diagnostics domain.DiagnosticReport

	log       *zap.Logger
	assets    fs.FS
	checker   *diagnostics.Checker
	group     *catalog.Group
	watcher   *catalog.Watcher
	intentLog string
	cancel    context.CancelFunc

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	appDir := config.AppDir()

	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	logger, err := logging.New(settings.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	intentLogPath := filepath.Join(appDir, "download-intents.json")
	intents, err := models.NewIntentLog(intentLogPath)
	if err != nil {
		return nil, fmt.Errorf("load download intent log: %w", err)
	}

	group, engines := buildModelStack(settings, logger)
	manager := models.NewManager(models.NewStore(), intents, group, engines, logger)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings, intentLogPath)

	return &App{
		Settings:    settings,
		Store:       store,
		Manager:     manager,
		Diagnostics: report,
		log:         logger,
		assets:      assets,
		checker:     checker,
		group:       group,
		intentLog:   intentLogPath,
	}, nil
}

// buildModelStack creates one catalog and one download engine per artifact
// family, all sharing the overlay file and the models root from settings.
func buildModelStack(settings domain.Settings, logger *zap.Logger) (*catalog.Group, map[domain.ModelFamily]models.Engine) {
	catalogs := make([]*catalog.Catalog, 0, len(domain.Families()))
	engines := make(map[domain.ModelFamily]models.Engine, len(domain.Families()))

	for _, family := range domain.Families() {
		dir := filepath.Join(settings.ModelsDir, string(family))
		c := catalog.New(family, dir, settings.CatalogPath, logger)
		catalogs = append(catalogs, c)
		engines[family] = engine.NewHTTP(dir, c, logger)
	}

	return catalog.NewGroup(catalogs...), engines
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Session Scribe",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores the Wails runtime context, starts the manager's event
// pumps, and begins watching the model directories for external changes.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	managerCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Manager.Start(managerCtx); err != nil {
		a.log.Error("start model manager", zap.Error(err))
	}

	// Push-on-change: the payload carries only the artifact id and its
	// current status so subscribers never act on a captured snapshot.
	a.Manager.Subscribe("", func(artifactID string) {
		a.emitStatus(artifactID)
	})

	watcher, err := catalog.NewWatcher(a.group.Dirs(), func() {
		if err := a.Manager.Reconcile(); err != nil {
			a.log.Warn("reconcile after filesystem change", zap.Error(err))
			return
		}
		a.emitRefresh()
	}, a.log)
	if err != nil {
		a.log.Warn("watch model directories", zap.Error(err))
		return
	}
	a.watcher = watcher
}

// Shutdown stops background work when the window closes.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	_ = a.log.Sync()
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
// A changed models directory takes effect on next launch.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.Diagnostics = a.checker.Run(normalized, a.intentLog)
	a.mu.Unlock()

	return normalized, nil
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.Diagnostics = a.checker.Run(settings, a.intentLog)
	report := a.Diagnostics
	a.mu.Unlock()

	return report, nil
}

// ListModels reconciles and returns every known model with its status.
func (a *App) ListModels() ([]domain.ModelView, error) {
	return a.Manager.ListModels()
}

// GetModelStatus returns the current status for one model.
func (a *App) GetModelStatus(artifactID string) domain.ArtifactStatus {
	return a.Manager.GetStatus(artifactID)
}

// DownloadModel admits a download for the model. A duplicate request while
// the model is already downloading is informational, not an error.
func (a *App) DownloadModel(artifactID string) error {
	err := a.Manager.RequestDownload(artifactID)
	if errors.Is(err, models.ErrDownloadInProgress) {
		a.log.Info("download already in progress", zap.String("artifact", artifactID))
		return nil
	}
	return err
}

// CancelModelDownload asks the engine to cancel an in-flight download. The
// status flips once the engine confirms. Cancelling an idle model is a no-op.
func (a *App) CancelModelDownload(artifactID string) error {
	err := a.Manager.CancelDownload(artifactID)
	if errors.Is(err, models.ErrNoActiveDownload) {
		return nil
	}
	return err
}

// DeleteModel removes a downloaded (or corrupted) model from disk.
func (a *App) DeleteModel(artifactID string) error {
	return a.Manager.DeleteArtifact(artifactID)
}

// ModelEvents returns sequenced status changes newer than sinceSeq, letting
// a remounting frontend catch up without missing transitions.
func (a *App) ModelEvents(sinceSeq int64) []models.ModelEvent {
	return a.Manager.Events(sinceSeq)
}

// DownloadSnapshot returns live transfer numbers for one model, or nil when
// no download is running.
func (a *App) DownloadSnapshot(artifactID string) *domain.DownloadSnapshot {
	snapshot, ok := a.Manager.DownloadSnapshotFor(artifactID)
	if !ok {
		return nil
	}
	return &snapshot
}

// PickModelsDirectory opens a native directory picker for the models root.
func (a *App) PickModelsDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select models directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenModelsFolder opens the models root in the platform file manager.
func (a *App) OpenModelsFolder() error {
	a.mu.Lock()
	dir := a.Settings.ModelsDir
	a.mu.Unlock()

	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("models directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create models directory: %w", err)
	}

	return openInFileManager(dir)
}

type statusEvent struct {
	ArtifactID string                `json:"artifactId"`
	Status     domain.ArtifactStatus `json:"status"`
}

// emitStatus pushes one status change to the frontend.
func (a *App) emitStatus(artifactID string) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}

	wailsruntime.EventsEmit(ctx, "model:status", statusEvent{
		ArtifactID: artifactID,
		Status:     a.Manager.GetStatus(artifactID),
	})
}

// emitRefresh tells the frontend to re-pull the model list.
func (a *App) emitRefresh() {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx == nil {
		return
	}

	wailsruntime.EventsEmit(ctx, "model:refresh")
}

// runtimeContext returns the current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and fills defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()

	settings.ModelsDir = strings.TrimSpace(settings.ModelsDir)
	settings.CatalogPath = strings.TrimSpace(settings.CatalogPath)
	settings.LogLevel = strings.TrimSpace(settings.LogLevel)

	if settings.ModelsDir == "" {
		settings.ModelsDir = defaults.ModelsDir
	}
	if settings.CatalogPath == "" {
		settings.CatalogPath = defaults.CatalogPath
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	return settings
}

// openInFileManager launches the platform file explorer for the given path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
