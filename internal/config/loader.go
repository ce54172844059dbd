package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader reads the configuration file with environment overrides.
type Loader struct {
	configPath string
}

// NewLoader creates a loader. An empty path falls back to
// ~/.assistant/assistant.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".assistant", "assistant.json"), nil
}

// Load resolves, reads, and validates the configuration. A missing
// file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.configPath
	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	dataDir := filepath.Dir(configPath)
	cfg := Default(dataDir)
	cfg.Source = configPath
	cfg.Permissions.Source = configPath

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("ASSISTANT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Source = configPath
	cfg.Permissions.Source = configPath
	if key := os.Getenv("ASSISTANT_MODEL_API_KEY"); key != "" {
		cfg.Model.APIKey = key
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
