// Package plugin discovers external tool descriptors. A plugin is a
// directory holding a plugin.json manifest that declares tools and the
// subprocess that serves them. Manifests are untrusted input: every
// one is schema-validated before its tools reach the registry, and a
// bad manifest is skipped, never fatal.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

var pluginIDRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

// ExecSpec names the subprocess that serves a plugin's tools.
type ExecSpec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Manifest is the parsed plugin.json.
type Manifest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description string              `json:"description,omitempty"`
	Tools       []registry.ToolSpec `json:"tools"`
	Exec        ExecSpec            `json:"exec"`

	// Dir is the plugin directory, set during discovery.
	Dir string `json:"-"`
}

// ManifestLoader loads and validates plugin manifests.
type ManifestLoader struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestLoader creates a manifest loader.
func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	return &ManifestLoader{
		logger:       logger.With().Str("component", "manifest-loader").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(manifestSchema),
	}
}

// Load reads and validates a manifest file.
func (m *ManifestLoader) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	if err := m.validateSchema(data); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest JSON: %w", err)
	}

	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	m.logger.Debug().
		Str("id", manifest.ID).
		Str("version", manifest.Version).
		Int("tools", len(manifest.Tools)).
		Msg("Loaded manifest")
	return &manifest, nil
}

func (m *ManifestLoader) validateSchema(data []byte) error {
	result, err := gojsonschema.Validate(m.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var msg string
		for i, e := range result.Errors() {
			if i > 0 {
				msg += "; "
			}
			msg += e.String()
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func validateManifest(manifest *Manifest) error {
	if !pluginIDRegex.MatchString(manifest.ID) {
		return fmt.Errorf("invalid plugin id %q", manifest.ID)
	}
	if _, err := semver.NewVersion(manifest.Version); err != nil {
		return fmt.Errorf("invalid version %q: %w", manifest.Version, err)
	}
	if manifest.Exec.Command == "" {
		return fmt.Errorf("exec.command is required")
	}
	if len(manifest.Tools) == 0 {
		return fmt.Errorf("manifest declares no tools")
	}
	for _, spec := range manifest.Tools {
		if err := registry.ValidateSpec(spec); err != nil {
			return fmt.Errorf("tool %q: %w", spec.Name, err)
		}
	}
	return nil
}
