package bootstrap

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"session-scribe/internal/config"
	"session-scribe/internal/diagnostics"
	"session-scribe/internal/domain"
	"session-scribe/internal/logging"
	"session-scribe/internal/models"
)

// NewHeadlessManager builds a model manager without a desktop window, for
// command-line use. The caller owns Start and shutdown.
func NewHeadlessManager(settings domain.Settings) (*models.Manager, *zap.Logger, error) {
	settings = normalizeSettings(settings)

	logger, err := logging.New(settings.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}

	intents, err := models.NewIntentLog(filepath.Join(config.AppDir(), "download-intents.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("load download intent log: %w", err)
	}

	group, engines := buildModelStack(settings, logger)
	return models.NewManager(models.NewStore(), intents, group, engines, logger), logger, nil
}

// RunDiagnostics loads persisted settings and runs the environment checks.
func RunDiagnostics() (domain.DiagnosticReport, error) {
	appDir := config.AppDir()

	settings, err := config.NewJSONStore(filepath.Join(appDir, "settings.json")).Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	return checker.Run(normalizeSettings(settings), filepath.Join(appDir, "download-intents.json")), nil
}
