// Package config loads and validates the assistant configuration,
// including the permissions policy consumed by the gate.
package config

import (
	"time"

	"github.com/bill-buster/personal-assistant-sub001/internal/logger"
	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
)

// Config is the resolved process configuration. It is built once at
// startup; a reload produces a fresh value rather than mutating a
// live one.
type Config struct {
	DataDir     string            `json:"data_dir" mapstructure:"data_dir"`
	PluginsDir  string            `json:"plugins_dir" mapstructure:"plugins_dir"`
	AuditLog    string            `json:"audit_log" mapstructure:"audit_log"`
	Permissions permission.Config `json:"permissions" mapstructure:"permissions"`
	Router      RouterConfig      `json:"router" mapstructure:"router"`
	Model       ModelConfig       `json:"model" mapstructure:"model"`
	Logging     logger.Config     `json:"logging" mapstructure:"logging"`

	// Source is the file this configuration was loaded from.
	Source string `json:"-" mapstructure:"-"`
}

// RouterConfig tunes the resolution stages.
type RouterConfig struct {
	HeuristicThreshold float64       `json:"heuristic_threshold" mapstructure:"heuristic_threshold"`
	HeuristicMargin    float64       `json:"heuristic_margin" mapstructure:"heuristic_margin"`
	FallbackRetries    int           `json:"fallback_retries" mapstructure:"fallback_retries"`
	FallbackTimeout    time.Duration `json:"fallback_timeout" mapstructure:"fallback_timeout"`
	CacheTTL           time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// ModelConfig selects the chat-completion collaborator for the model
// fallback stage. An empty APIKey disables the stage.
type ModelConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	Name     string `json:"name" mapstructure:"name"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// Default returns the default configuration rooted at dataDir.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:    dataDir,
		PluginsDir: dataDir + "/plugins",
		AuditLog:   dataDir + "/audit.jsonl",
		Permissions: permission.Config{
			AllowPaths:             []string{dataDir},
			AllowCommands:          []string{"ls", "cat", "echo", "date", "git"},
			RequireConfirmationFor: []string{"delete_file", "run_command"},
			DenyTools:              []string{},
		},
		Router: RouterConfig{
			HeuristicThreshold: 0.5,
			HeuristicMargin:    0.15,
			FallbackRetries:    3,
			FallbackTimeout:    15 * time.Second,
			CacheTTL:           10 * time.Minute,
		},
		Model: ModelConfig{
			Provider: "openai",
			Name:     "gpt-4o-mini",
		},
		Logging: logger.DefaultConfig(),
	}
}
