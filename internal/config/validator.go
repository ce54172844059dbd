package config

import (
	"fmt"
	"path/filepath"
)

// Validate checks a resolved configuration for values the pipeline
// cannot operate with.
func Validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if !filepath.IsAbs(cfg.DataDir) {
		return fmt.Errorf("data_dir must be absolute, got %q", cfg.DataDir)
	}
	if len(cfg.Permissions.AllowPaths) == 0 {
		return fmt.Errorf("permissions.allow_paths cannot be empty")
	}

	r := cfg.Router
	if r.HeuristicThreshold <= 0 || r.HeuristicThreshold > 1 {
		return fmt.Errorf("router.heuristic_threshold must be in (0, 1], got %v", r.HeuristicThreshold)
	}
	if r.HeuristicMargin < 0 || r.HeuristicMargin >= 1 {
		return fmt.Errorf("router.heuristic_margin must be in [0, 1), got %v", r.HeuristicMargin)
	}
	if r.FallbackRetries < 1 {
		return fmt.Errorf("router.fallback_retries must be at least 1, got %d", r.FallbackRetries)
	}
	if r.FallbackTimeout <= 0 {
		return fmt.Errorf("router.fallback_timeout must be positive, got %v", r.FallbackTimeout)
	}
	if r.CacheTTL <= 0 {
		return fmt.Errorf("router.cache_ttl must be positive, got %v", r.CacheTTL)
	}

	switch cfg.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider must be openai or anthropic, got %q", cfg.Model.Provider)
	}

	return nil
}
