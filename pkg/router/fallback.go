package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bill-buster/personal-assistant-sub001/pkg/cache"
	"github.com/bill-buster/personal-assistant-sub001/pkg/llm"
)

const fallbackScope = "route"

// fallback is the only stage that performs network I/O and the only
// suspension point in the router. Successful resolutions are memoized
// by (provider, model, normalized input) so identical free-text inputs
// do not re-invoke the model; concurrent misses for one key share a
// single upstream call.
func (r *Router) fallback(ctx context.Context, input string) (*Resolution, *RouteError) {
	if r.completer == nil {
		return nil, &RouteError{Code: CodeNoMatch, Message: "no resolution stage matched and no model is configured"}
	}

	key := cache.Key(fallbackScope, r.completer.Provider(), r.cfg.Model, input)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FallbackTimeout)
	defer cancel()

	value, hit, err := r.cache.GetOrCompute(ctx, key, r.cfg.CacheTTL, func(ctx context.Context) (interface{}, error) {
		return r.completeWithRetries(ctx, input)
	})
	if hit {
		r.metrics.RecordCacheEvent("hit")
	} else {
		r.metrics.RecordCacheEvent("miss")
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RouteError{Code: CodeTimeout, Message: "model fallback timed out"}
		}
		return nil, &RouteError{Code: CodeNoMatch, Message: err.Error()}
	}

	call, ok := value.(ToolCall)
	if !ok {
		return nil, &RouteError{Code: CodeNoMatch, Message: "cached resolution has unexpected shape"}
	}
	// The cached ToolCall's args map is shared by every resolution of
	// this key. Hand each caller its own copy so annotations (such as a
	// confirmation flag) never leak into the cache.
	call.Args = cloneArgs(call.Args)
	return &Resolution{Call: call, CacheHit: hit, Model: r.cfg.Model}, nil
}

func cloneArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// completeWithRetries prompts the model, validating each answer
// against the named tool's spec. Malformed or schema-invalid output is
// retried up to the configured bound under the same cache key.
func (r *Router) completeWithRetries(ctx context.Context, input string) (interface{}, error) {
	req := llm.Request{
		System: llm.RoutingSystemPrompt,
		User:   input,
		Tools:  r.toolSchemas(),
		Model:  r.cfg.Model,
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.FallbackRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		completion, err := r.completer.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.metrics.RecordModelCall(r.completer.Provider(), "error")
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("Model fallback call failed")
			continue
		}
		r.metrics.RecordModelCall(r.completer.Provider(), "ok")

		call, err := r.validateCompletion(completion)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("Model fallback produced unusable output")
			continue
		}
		return *call, nil
	}

	return nil, fmt.Errorf("no tool matched after %d attempts: %w", r.cfg.FallbackRetries, lastErr)
}

// validateCompletion checks the model's answer names a registered tool
// and that its args satisfy the tool's schema.
func (r *Router) validateCompletion(completion *llm.Completion) (*ToolCall, error) {
	if completion.ToolName == "" {
		return nil, fmt.Errorf("model produced no tool call: %q", truncate(completion.Raw, 120))
	}
	tool, ok := r.registry.Lookup(completion.ToolName)
	if !ok {
		return nil, fmt.Errorf("model named unregistered tool %q", completion.ToolName)
	}

	args := completion.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := tool.Schema().Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("model args failed schema for %q: %s", completion.ToolName, firstSchemaError(result))
	}

	return &ToolCall{
		Tool:       completion.ToolName,
		Args:       args,
		Stage:      StageModelFallback,
		Confidence: 0.9,
	}, nil
}

func (r *Router) toolSchemas() []llm.ToolSchema {
	specs := r.registry.List()
	shapes := make([]llm.SpecShape, 0, len(specs))
	for _, s := range specs {
		params := make(map[string]llm.ParamShape, len(s.Parameters))
		for name, p := range s.Parameters {
			params[name] = llm.ParamShape{Type: p.Type, Description: p.Description, Enum: p.Enum}
		}
		shapes = append(shapes, llm.SpecShape{
			Name:        s.Name,
			Description: s.Description,
			Required:    s.Required,
			Parameters:  params,
		})
	}
	return llm.SchemasFromSpecs(shapes)
}

func firstSchemaError(result *gojsonschema.Result) string {
	for _, e := range result.Errors() {
		return e.String()
	}
	return "invalid"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
