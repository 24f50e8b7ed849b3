package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"session-scribe/internal/domain"
)

// minValidModelBytes is the floor below which a model file on disk cannot be
// a real model.
const minValidModelBytes = 1 * mib

// Catalog lists known artifacts for one family and reports on-disk ground
// truth for each. Built-in presets can be extended through an optional YAML
// overlay file shared across families.
type Catalog struct {
	family      domain.ModelFamily
	dir         string
	overlayPath string
	presets     []domain.Artifact
	log         *zap.Logger
}

// New creates a catalog for one family scanning dir for downloaded files.
// overlayPath may be empty or point to a file that does not exist yet.
func New(family domain.ModelFamily, dir, overlayPath string, log *zap.Logger) *Catalog {
	return &Catalog{
		family:      family,
		dir:         dir,
		overlayPath: overlayPath,
		presets:     builtinArtifacts(family),
		log:         log,
	}
}

// Dir returns the directory this catalog scans.
func (c *Catalog) Dir() string {
	return c.dir
}

// Resolve maps an artifact id to its full descriptor.
func (c *Catalog) Resolve(artifactID string) (domain.Artifact, bool) {
	for _, artifact := range c.known() {
		if artifact.ID == artifactID {
			return artifact, true
		}
	}
	return domain.Artifact{}, false
}

// ListKnownArtifacts returns every known artifact together with what is
// actually on disk. This is the ground truth reconciliation trusts.
func (c *Catalog) ListKnownArtifacts() ([]domain.CatalogEntry, error) {
	artifacts := c.known()
	entries := make([]domain.CatalogEntry, 0, len(artifacts))

	for _, artifact := range artifacts {
		entry := domain.CatalogEntry{Artifact: artifact, DiskState: domain.DiskMissing}

		path := filepath.Join(c.dir, artifact.FileName)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			entry.LocalPath = path
			entry.SizeOnDisk = info.Size()
			entry.DiskState = diskStateForSize(info.Size(), artifact.DeclaredSizeBytes)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// known merges presets with overlay artifacts for this family.
func (c *Catalog) known() []domain.Artifact {
	artifacts := make([]domain.Artifact, len(c.presets))
	copy(artifacts, c.presets)

	extra, err := loadOverlay(c.overlayPath, c.family)
	if err != nil {
		c.log.Warn("skipping catalog overlay",
			zap.String("path", c.overlayPath), zap.Error(err))
		return artifacts
	}
	return append(artifacts, extra...)
}

// diskStateForSize applies a size heuristic: a file under 1 MiB, or under
// 90% of the declared size, holds a truncated download rather than a model.
func diskStateForSize(onDisk, declared int64) domain.DiskState {
	if onDisk < minValidModelBytes {
		return domain.DiskCorrupted
	}
	if declared > 0 && onDisk < declared/10*9 {
		return domain.DiskCorrupted
	}
	return domain.DiskAvailable
}

type overlayFile struct {
	Artifacts []overlayArtifact `yaml:"artifacts"`
}

type overlayArtifact struct {
	ID          string `yaml:"id"`
	Family      string `yaml:"family"`
	Name        string `yaml:"name"`
	File        string `yaml:"file"`
	URL         string `yaml:"url"`
	SizeBytes   int64  `yaml:"size_bytes"`
	Description string `yaml:"description"`
}

// loadOverlay reads user-defined artifacts for one family. A missing file or
// empty path is an empty overlay.
func loadOverlay(path string, family domain.ModelFamily) ([]domain.Artifact, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var file overlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog overlay: %w", err)
	}

	var out []domain.Artifact
	for _, entry := range file.Artifacts {
		if domain.ModelFamily(entry.Family) != family {
			continue
		}
		if entry.ID == "" || entry.File == "" || entry.URL == "" {
			return nil, fmt.Errorf("overlay artifact needs id, file, and url (got id=%q)", entry.ID)
		}
		out = append(out, domain.Artifact{
			ID:                entry.ID,
			Family:            family,
			Name:              entry.Name,
			FileName:          entry.File,
			URL:               entry.URL,
			DeclaredSizeBytes: entry.SizeBytes,
			Description:       entry.Description,
		})
	}
	return out, nil
}
