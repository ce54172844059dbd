// Package router resolves free-text user input to a validated tool
// call through three ordered stages: a deterministic fast path, a
// keyword-overlap heuristic, and a memoized model fallback. The first
// stage to produce a registered tool wins.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bill-buster/personal-assistant-sub001/internal/metrics"
	"github.com/bill-buster/personal-assistant-sub001/pkg/cache"
	"github.com/bill-buster/personal-assistant-sub001/pkg/llm"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
)

// Stage identifies which resolution strategy produced a tool call.
type Stage string

const (
	StageFastPath      Stage = "fast_path"
	StageHeuristic     Stage = "heuristic"
	StageModelFallback Stage = "model_fallback"
)

// Routing error codes.
const (
	CodeNoMatch = "ROUTING_NO_MATCH"
	CodeTimeout = "ROUTING_TIMEOUT"
)

// ToolCall is a resolved (tool, args) pair with provenance.
type ToolCall struct {
	Tool       string                 `json:"tool"`
	Args       map[string]interface{} `json:"args"`
	Stage      Stage                  `json:"stage"`
	Confidence float64                `json:"confidence"`
}

// Resolution wraps a tool call with routing debug facts. CacheHit is
// true when no model call was made for this resolution: it was served
// from the memoized routing cache or shared another caller's in-flight
// model call.
type Resolution struct {
	Call     ToolCall
	CacheHit bool
	Model    string // provider model used, empty unless model fallback ran
}

// RouteError is a routing failure with a stable code.
type RouteError struct {
	Code    string
	Message string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config tunes the resolution stages.
type Config struct {
	HeuristicThreshold float64
	HeuristicMargin    float64
	FallbackRetries    int
	FallbackTimeout    time.Duration
	CacheTTL           time.Duration
	Model              string
}

// Router resolves raw text against a tool registry.
type Router struct {
	registry  *registry.Registry
	cache     *cache.Cache
	completer llm.ChatCompleter
	patterns  []Pattern
	heuristic *heuristic
	cfg       Config
	metrics   *metrics.Metrics
}

// New builds a router. completer may be nil, which disables the model
// fallback stage. The pattern table is verified for mutual
// exclusivity at construction.
func New(reg *registry.Registry, c *cache.Cache, completer llm.ChatCompleter, patterns []Pattern, cfg Config, m *metrics.Metrics) (*Router, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if c == nil {
		c = cache.New()
	}
	if err := VerifyExclusive(patterns); err != nil {
		return nil, err
	}
	if cfg.FallbackRetries < 1 {
		cfg.FallbackRetries = 3
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 15 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	return &Router{
		registry:  reg,
		cache:     c,
		completer: completer,
		patterns:  patterns,
		heuristic: newHeuristic(reg, cfg.HeuristicThreshold, cfg.HeuristicMargin),
		cfg:       cfg,
		metrics:   m,
	}, nil
}

// Resolve runs the stage pipeline. Only the model fallback performs
// network I/O; the first two stages are deterministic and local.
func (r *Router) Resolve(ctx context.Context, input string) (*Resolution, *RouteError) {
	if call, ok := r.matchFastPath(input); ok {
		r.metrics.RecordStage(string(StageFastPath))
		log.Debug().Str("tool", call.Tool).Msg("Resolved via fast path")
		return &Resolution{Call: *call}, nil
	}

	if call, ok := r.heuristic.resolve(input); ok {
		r.metrics.RecordStage(string(StageHeuristic))
		log.Debug().Str("tool", call.Tool).Float64("confidence", call.Confidence).Msg("Resolved via heuristic")
		return &Resolution{Call: *call}, nil
	}

	res, rerr := r.fallback(ctx, input)
	if rerr != nil {
		r.metrics.RecordRoutingFailure(rerr.Code)
		return nil, rerr
	}
	r.metrics.RecordStage(string(StageModelFallback))
	return res, nil
}

// matchFastPath tries the ordered pattern table. A pattern whose tool
// is not registered counts as no-match so control can fall through.
func (r *Router) matchFastPath(input string) (*ToolCall, bool) {
	for _, p := range r.patterns {
		args, ok := p.Match(input)
		if !ok {
			continue
		}
		if _, registered := r.registry.Lookup(p.Tool); !registered {
			log.Warn().Str("pattern", p.Name).Str("tool", p.Tool).Msg("Fast-path pattern names an unregistered tool")
			return nil, false
		}
		return &ToolCall{
			Tool:       p.Tool,
			Args:       args,
			Stage:      StageFastPath,
			Confidence: 1.0,
		}, true
	}
	return nil, false
}

// InvalidateFallbackCache drops memoized model resolutions. Called
// when the tool schema set or permissions config changes.
func (r *Router) InvalidateFallbackCache() {
	r.cache.InvalidateScope(fallbackScope)
}
