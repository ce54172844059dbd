// Package llm abstracts the chat-completion capability the router's
// model-fallback stage depends on. Provider wire formats stay behind
// the ChatCompleter interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ToolSchema is the compact tool description sent to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is a constrained structured-tool-call prompt.
type Request struct {
	System string
	User   string
	Tools  []ToolSchema
	Model  string
}

// Completion is one structured tool-call answer. ToolName is empty
// when the model produced no usable tool call.
type Completion struct {
	ToolName string
	Args     map[string]interface{}
	Raw      string
}

// ChatCompleter is the narrow interface the router suspends on. It is
// the router's only source of network I/O.
type ChatCompleter interface {
	Provider() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// SalvageToolCall extracts a {"tool": ..., "args": {...}} object from
// free-form model text. Models occasionally answer in prose with an
// embedded JSON block instead of using the native tool-call channel;
// this recovers those before the router burns a retry.
func SalvageToolCall(text string) (*Completion, bool) {
	start := -1
	depth := 0
	for i, r := range text {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				if c, ok := parseCandidate(text[start : i+1]); ok {
					return c, true
				}
			}
		}
	}
	return nil, false
}

func parseCandidate(candidate string) (*Completion, bool) {
	if !gjson.Valid(candidate) {
		return nil, false
	}
	tool := gjson.Get(candidate, "tool")
	if !tool.Exists() || tool.Type != gjson.String || tool.String() == "" {
		return nil, false
	}
	args := map[string]interface{}{}
	if raw := gjson.Get(candidate, "args"); raw.Exists() && raw.IsObject() {
		if err := json.Unmarshal([]byte(raw.Raw), &args); err != nil {
			return nil, false
		}
	}
	return &Completion{ToolName: tool.String(), Args: args, Raw: candidate}, true
}

// RoutingSystemPrompt instructs the model to answer with exactly one
// tool call against the provided schemas.
const RoutingSystemPrompt = `You route a user's request to exactly one of the available tools.
Respond with a single tool call. Fill every required argument from the
user's text. If no tool fits, respond with the literal text NO_MATCH.`

// SchemasFromSpecs converts registry-shaped specs into compact tool
// schemas for the prompt.
func SchemasFromSpecs(specs []SpecShape) []ToolSchema {
	schemas := make([]ToolSchema, 0, len(specs))
	for _, s := range specs {
		properties := make(map[string]interface{}, len(s.Parameters))
		for name, p := range s.Parameters {
			prop := map[string]interface{}{
				"type":        p.Type,
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			properties[name] = prop
		}
		schemas = append(schemas, ToolSchema{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   s.Required,
			},
		})
	}
	return schemas
}

// SpecShape mirrors the descriptor contract without importing the
// registry package.
type SpecShape struct {
	Name        string
	Description string
	Required    []string
	Parameters  map[string]ParamShape
}

// ParamShape mirrors a parameter descriptor.
type ParamShape struct {
	Type        string
	Description string
	Enum        []string
}

// ErrNoChoices is returned when a provider answers with an empty
// choice list.
var ErrNoChoices = fmt.Errorf("no response choices returned")
