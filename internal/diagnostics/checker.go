package diagnostics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"session-scribe/internal/domain"
)

// Checker validates the filesystem locations the model manager depends on.
type Checker struct {
	stat       func(string) (os.FileInfo, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	readFile   func(string) ([]byte, error)
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		stat:       os.Stat,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		readFile:   os.ReadFile,
	}
}

// NewCheckerForTests builds a checker with injected dependencies.
func NewCheckerForTests(
	stat func(string) (os.FileInfo, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
	readFile func(string) ([]byte, error),
) *Checker {
	return &Checker{
		stat:       stat,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
		readFile:   readFile,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, intentLogPath string) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkModelsDir(settings.ModelsDir),
		c.checkIntentLog(intentLogPath),
		c.checkCatalogOverlay(settings.CatalogPath),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkModelsDir verifies the models directory exists (or can be created)
// and is writable, since every download lands there.
func (c *Checker) checkModelsDir(dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "models_dir",
		Name: "Models directory",
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Models directory is not configured."
		item.Hint = "Set a models directory in settings."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create models directory: %s", dir)
		item.Hint = "Check permissions for the configured path."
		return item
	}

	probe, err := c.createTemp(dir, ".write-probe-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models directory is not writable: %s", dir)
		item.Hint = "Model downloads need write access to this directory."
		return item
	}
	name := probe.Name()
	_ = probe.Close()
	_ = c.remove(name)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable at %s", dir)
	return item
}

// checkIntentLog verifies the download intent log location is usable, since
// crash recovery depends on it.
func (c *Checker) checkIntentLog(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "intent_log",
		Name: "Download intent log",
	}

	dir := filepath.Dir(path)
	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create intent log directory: %s", dir)
		item.Hint = "Interrupted downloads cannot be recovered without it."
		return item
	}

	if _, err := c.stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot access intent log: %s", path)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Ready at %s", path)
	return item
}

// checkCatalogOverlay parses the optional user catalog file when present.
func (c *Checker) checkCatalogOverlay(path string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "catalog_overlay",
		Name: "Catalog overlay",
	}

	if strings.TrimSpace(path) == "" {
		item.Status = domain.DiagnosticStatusWarn
		item.Message = "No overlay configured; using built-in model catalog."
		return item
	}

	data, err := c.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = "No overlay file present; using built-in model catalog."
			return item
		}
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read catalog overlay: %s", path)
		return item
	}

	var parsed struct {
		Artifacts []map[string]any `yaml:"artifacts"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Catalog overlay is not valid YAML: %v", err)
		item.Hint = "Fix or remove the overlay file; built-in models keep working."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Overlay with %d artifact(s) at %s", len(parsed.Artifacts), path)
	return item
}
