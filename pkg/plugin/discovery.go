package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Discovery scans a plugins directory for manifests.
type Discovery struct {
	logger zerolog.Logger
	loader *ManifestLoader
}

// NewDiscovery creates a plugin discovery instance.
func NewDiscovery(logger zerolog.Logger) *Discovery {
	return &Discovery{
		logger: logger.With().Str("component", "plugin-discovery").Logger(),
		loader: NewManifestLoader(logger),
	}
}

// Discover loads every valid manifest under dir. Each plugin lives in
// its own subdirectory holding a plugin.json. Invalid manifests are
// logged and skipped so one broken plugin never blocks startup.
func (d *Discovery) Discover(dir string) ([]*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Debug().Str("dir", dir).Msg("Plugins directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat plugins directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	seen := make(map[string]bool)
	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, entry.Name())
		manifestPath := filepath.Join(pluginDir, "plugin.json")
		if _, err := os.Stat(manifestPath); err != nil {
			if !os.IsNotExist(err) {
				d.logger.Warn().Err(err).Str("dir", pluginDir).Msg("Failed to check for plugin.json")
			}
			continue
		}

		manifest, err := d.loader.Load(manifestPath)
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", pluginDir).Msg("Skipping invalid plugin manifest")
			continue
		}
		if seen[manifest.ID] {
			d.logger.Warn().Str("id", manifest.ID).Str("dir", pluginDir).Msg("Skipping duplicate plugin id")
			continue
		}
		seen[manifest.ID] = true
		manifest.Dir = pluginDir
		manifests = append(manifests, manifest)
		d.logger.Debug().
			Str("id", manifest.ID).
			Str("path", pluginDir).
			Msg("Discovered plugin")
	}

	d.logger.Info().Int("count", len(manifests)).Str("dir", dir).Msg("Plugin discovery completed")
	return manifests, nil
}
