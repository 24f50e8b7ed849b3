package config

import (
	"os"
	"path/filepath"

	"session-scribe/internal/domain"
)

// AppDir returns the per-user directory holding settings, models, and the
// download intent log.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".session-scribe")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	appDir := AppDir()

	return domain.Settings{
		ModelsDir:   filepath.Join(appDir, "models"),
		CatalogPath: filepath.Join(appDir, "models.yaml"),
		LogLevel:    "info",
	}
}
