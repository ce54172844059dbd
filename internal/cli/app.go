package cli

import (
	"fmt"
	"os"

	"github.com/bill-buster/personal-assistant-sub001/internal/audit"
	"github.com/bill-buster/personal-assistant-sub001/internal/config"
	"github.com/bill-buster/personal-assistant-sub001/internal/logger"
	"github.com/bill-buster/personal-assistant-sub001/internal/metrics"
	"github.com/bill-buster/personal-assistant-sub001/pkg/cache"
	"github.com/bill-buster/personal-assistant-sub001/pkg/coretools"
	"github.com/bill-buster/personal-assistant-sub001/pkg/executor"
	"github.com/bill-buster/personal-assistant-sub001/pkg/llm"
	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
	"github.com/bill-buster/personal-assistant-sub001/pkg/plugin"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
	"github.com/bill-buster/personal-assistant-sub001/pkg/router"
	"github.com/bill-buster/personal-assistant-sub001/pkg/store"
)

// App wires the assistant's components together for the CLI commands.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Registry *registry.Registry
	Router   *router.Router
	Executor *executor.Executor

	memory  *store.MemoryStore
	tasks   *store.TaskStore
	auditor *audit.Logger
	watcher *config.Watcher
}

// NewApp builds the full component graph from configuration.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zl := lg.Zerolog()

	m := metrics.New()

	memory, err := store.OpenMemory(cfg.DataDir+"/memory.jsonl", zl)
	if err != nil {
		lg.Close()
		return nil, err
	}
	tasks, err := store.OpenTasks(cfg.DataDir+"/tasks.db", zl)
	if err != nil {
		memory.Close()
		lg.Close()
		return nil, err
	}

	builder := registry.NewBuilder()
	if err := coretools.Register(builder, coretools.Deps{Memory: memory, Tasks: tasks}); err != nil {
		tasks.Close()
		memory.Close()
		lg.Close()
		return nil, err
	}

	manifests, err := plugin.NewDiscovery(zl).Discover(cfg.PluginsDir)
	if err != nil {
		zl.Warn().Err(err).Str("dir", cfg.PluginsDir).Msg("Plugin discovery failed, continuing without plugins")
	} else {
		plugin.RegisterAll(builder, manifests, zl)
	}
	reg := builder.Build()

	gate := permission.NewGate(cfg.Permissions)

	auditor, err := audit.Open(cfg.AuditLog)
	if err != nil {
		tasks.Close()
		memory.Close()
		lg.Close()
		return nil, err
	}

	var completer llm.ChatCompleter
	switch {
	case cfg.Model.APIKey == "":
		zl.Debug().Msg("No model API key configured, model fallback disabled")
	case cfg.Model.Provider == "anthropic":
		completer = llm.NewAnthropicProvider(cfg.Model.APIKey)
	default:
		completer = llm.NewOpenAIProvider(cfg.Model.APIKey)
	}

	rt, err := router.New(reg, cache.New(), completer, router.DefaultPatterns(), router.Config{
		HeuristicThreshold: cfg.Router.HeuristicThreshold,
		HeuristicMargin:    cfg.Router.HeuristicMargin,
		FallbackRetries:    cfg.Router.FallbackRetries,
		FallbackTimeout:    cfg.Router.FallbackTimeout,
		CacheTTL:           cfg.Router.CacheTTL,
		Model:              cfg.Model.Name,
	}, m)
	if err != nil {
		auditor.Close()
		tasks.Close()
		memory.Close()
		lg.Close()
		return nil, err
	}

	exec := executor.New(reg, gate, auditor, lg.Redactor(), m, cfg.DataDir)

	app := &App{
		Config:   cfg,
		Logger:   lg,
		Metrics:  m,
		Registry: reg,
		Router:   rt,
		Executor: exec,
		memory:   memory,
		tasks:    tasks,
		auditor:  auditor,
	}

	// A permissions or model change invalidates memoized routing
	// decisions; the watcher is optional and best-effort.
	if watcher, werr := config.NewWatcher(zl, cfg.Source, rt.InvalidateFallbackCache); werr != nil {
		zl.Debug().Err(werr).Msg("Config watcher unavailable")
	} else {
		app.watcher = watcher
	}

	return app, nil
}

// Close releases every resource the app holds.
func (a *App) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.auditor.Close()
	a.tasks.Close()
	a.memory.Close()
	a.Logger.Close()
}
