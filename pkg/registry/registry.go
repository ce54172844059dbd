// Package registry holds the immutable tool registry: the closed set of
// built-in tool descriptors plus validated external descriptors, each
// paired with its handler and a compiled argument schema.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
)

// Status marks a tool's maturity.
type Status string

const (
	StatusReady        Status = "ready"
	StatusStub         Status = "stub"
	StatusExperimental Status = "experimental"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSpec is a tool's schema: name, status, description, and its
// required/optional parameters. Immutable once registered.
type ToolSpec struct {
	Name        string               `json:"name"`
	Status      Status               `json:"status"`
	Description string               `json:"description"`
	Required    []string             `json:"required"`
	Parameters  map[string]ParamSpec `json:"parameters"`
}

// Env is the execution surface handlers see. It is implemented by the
// executor's invocation context; handlers never touch the filesystem
// or spawn commands except through it.
type Env interface {
	// ResolvePath canonicalizes a path argument and confines it to
	// the allowed roots. op is "read" or "write".
	ResolvePath(path, op string) (string, error)
	// ValidateCommand checks an executable against the command allowlist.
	ValidateCommand(command string) error
	DataDir() string
	StartTime() time.Time
	Agent() permission.Agent
	Permissions() permission.Config
}

// Handler executes a tool with validated args.
type Handler func(ctx context.Context, args map[string]interface{}, env Env) (interface{}, error)

// ToolError is a domain failure a handler reports deliberately, such
// as file-not-found. The executor passes it through unmodified instead
// of reinterpreting it as an internal fault.
type ToolError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Tool pairs a spec with its handler and compiled argument schema.
type Tool struct {
	Spec    ToolSpec
	Handler Handler
	schema  *gojsonschema.Schema
}

// Schema returns the compiled argument schema.
func (t *Tool) Schema() *gojsonschema.Schema {
	return t.schema
}

// Registry maps tool name to (spec, handler). It is built once at
// startup and never mutated afterwards; both operations are
// side-effect free.
type Registry struct {
	tools map[string]*Tool
}

// Lookup returns a tool by name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered spec sorted by name.
func (r *Registry) List() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.Spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Builder accumulates descriptors before freezing them into a Registry.
// Built-ins are registered first; external descriptors added later
// never shadow them.
type Builder struct {
	tools    map[string]*Tool
	builtins map[string]bool
}

// NewBuilder creates an empty registry builder.
func NewBuilder() *Builder {
	return &Builder{
		tools:    make(map[string]*Tool),
		builtins: make(map[string]bool),
	}
}

// AddBuiltin registers a built-in tool. Invalid built-in descriptors
// are a programming error and abort the build.
func (b *Builder) AddBuiltin(spec ToolSpec, handler Handler) error {
	if err := ValidateSpec(spec); err != nil {
		return fmt.Errorf("invalid builtin descriptor %q: %w", spec.Name, err)
	}
	if handler == nil {
		return fmt.Errorf("builtin %q has no handler", spec.Name)
	}
	if _, exists := b.tools[spec.Name]; exists {
		return fmt.Errorf("duplicate builtin %q", spec.Name)
	}
	schema, err := compileSchema(spec)
	if err != nil {
		return fmt.Errorf("schema for builtin %q: %w", spec.Name, err)
	}
	b.tools[spec.Name] = &Tool{Spec: spec, Handler: handler, schema: schema}
	b.builtins[spec.Name] = true
	return nil
}

// AddExternal registers an external (plugin-supplied) tool. Invalid
// descriptors and name collisions with built-ins are skipped with a
// warning; they never abort startup.
func (b *Builder) AddExternal(spec ToolSpec, handler Handler) bool {
	if err := ValidateSpec(spec); err != nil {
		log.Warn().Str("tool", spec.Name).Err(err).Msg("Skipping invalid external tool descriptor")
		return false
	}
	if handler == nil {
		log.Warn().Str("tool", spec.Name).Msg("Skipping external tool with no handler")
		return false
	}
	if _, exists := b.tools[spec.Name]; exists {
		log.Warn().Str("tool", spec.Name).Msg("Skipping external tool shadowing an existing name")
		return false
	}
	schema, err := compileSchema(spec)
	if err != nil {
		log.Warn().Str("tool", spec.Name).Err(err).Msg("Skipping external tool with uncompilable schema")
		return false
	}
	b.tools[spec.Name] = &Tool{Spec: spec, Handler: handler, schema: schema}
	return true
}

// Build freezes the accumulated tools into an immutable Registry.
func (b *Builder) Build() *Registry {
	tools := make(map[string]*Tool, len(b.tools))
	for name, t := range b.tools {
		tools[name] = t
	}
	log.Info().Int("tools", len(tools)).Msg("Tool registry built")
	return &Registry{tools: tools}
}

var validParamTypes = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true,
}

// ValidateSpec checks a descriptor against the tool descriptor
// contract. External descriptors are untrusted input, so this runs
// before anything else touches them.
func ValidateSpec(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	switch spec.Status {
	case StatusReady, StatusStub, StatusExperimental:
	default:
		return fmt.Errorf("invalid status %q", spec.Status)
	}
	if spec.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	for name, param := range spec.Parameters {
		if name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validParamTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, name)
		}
	}
	for _, req := range spec.Required {
		if _, ok := spec.Parameters[req]; !ok {
			return fmt.Errorf("required parameter %q is not declared", req)
		}
	}
	return nil
}

// compileSchema builds the JSON Schema used to validate args before a
// handler runs.
func compileSchema(spec ToolSpec) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(spec.Parameters))
	for name, param := range spec.Parameters {
		p := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			enum := make([]interface{}, len(param.Enum))
			for i, v := range param.Enum {
				enum[i] = v
			}
			p["enum"] = enum
		}
		properties[name] = p
	}

	// Any tool may be confirmation-gated by configuration, so the
	// confirm flag must validate even when a descriptor omits it.
	if _, ok := properties["confirm"]; !ok {
		properties["confirm"] = map[string]interface{}{
			"type":        "boolean",
			"description": "Confirms a confirmation-gated invocation",
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(spec.Required) > 0 {
		schemaMap["required"] = spec.Required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
