// Package executor runs a resolved tool call through the fixed
// Validate, PermissionCheck, Dispatch, Complete pipeline. The stage
// order is a security invariant: no resource access happens before
// the permission gate passes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/bill-buster/personal-assistant-sub001/internal/audit"
	"github.com/bill-buster/personal-assistant-sub001/internal/logger"
	"github.com/bill-buster/personal-assistant-sub001/internal/metrics"
	"github.com/bill-buster/personal-assistant-sub001/pkg/permission"
	"github.com/bill-buster/personal-assistant-sub001/pkg/registry"
	"github.com/bill-buster/personal-assistant-sub001/pkg/router"
)

// Parameter-name conventions the confinement rule keys on: a tool
// declaring one of these parameters gets its argument checked against
// the corresponding allowlist before dispatch.
var (
	pathParams    = map[string]bool{"path": true}
	commandParams = map[string]bool{"command": true}
)

// Executor orchestrates tool invocations.
type Executor struct {
	registry *registry.Registry
	gate     *permission.Gate
	auditLog *audit.Logger
	redactor *logger.Redactor
	metrics  *metrics.Metrics
	dataDir  string
}

// New creates an executor. auditLog and m may be nil.
func New(reg *registry.Registry, gate *permission.Gate, auditLog *audit.Logger, redactor *logger.Redactor, m *metrics.Metrics, dataDir string) *Executor {
	if redactor == nil {
		redactor = logger.NewRedactor()
	}
	return &Executor{
		registry: reg,
		gate:     gate,
		auditLog: auditLog,
		redactor: redactor,
		metrics:  m,
		dataDir:  dataDir,
	}
}

// Execute runs a tool call for an agent.
func (e *Executor) Execute(ctx context.Context, call router.ToolCall, agent permission.Agent) Result {
	return e.run(ctx, call, agent, Debug{Stage: string(call.Stage)})
}

// ExecuteResolved runs a routed resolution, carrying the router's
// cache and model facts into the debug metadata.
func (e *Executor) ExecuteResolved(ctx context.Context, res *router.Resolution, agent permission.Agent) Result {
	return e.run(ctx, res.Call, agent, Debug{
		Stage:    string(res.Call.Stage),
		CacheHit: res.CacheHit,
		Model:    res.Model,
	})
}

func (e *Executor) run(ctx context.Context, call router.ToolCall, agent permission.Agent, debug Debug) Result {
	start := time.Now()
	debug.Start = start
	debug.InvocationID = uuid.NewString()

	args := call.Args
	if args == nil {
		args = map[string]interface{}{}
	}

	// An unregistered tool is rejected before any other processing.
	tool, ok := e.registry.Lookup(call.Tool)
	if !ok {
		return e.complete(ctx, call, agent, debug, start, Result{
			OK: false,
			Err: &Error{
				Code:    CodeValidationError,
				Message: fmt.Sprintf("unknown tool %q", call.Tool),
			},
		})
	}

	// Validate. The handler is never invoked on failure.
	if verr := e.validate(tool, args); verr != nil {
		return e.complete(ctx, call, agent, debug, start, Result{OK: false, Err: verr})
	}

	// PermissionCheck, in the gate's fixed rule order.
	if denial := e.gate.Check(e.gateRequest(tool, call.Tool, args), agent); denial != nil {
		e.metrics.RecordDenial(denial.Code)
		return e.complete(ctx, call, agent, debug, start, Result{
			OK: false,
			Err: &Error{
				Code:    denial.Code,
				Message: denial.Message,
				Details: denial.Details,
			},
		})
	}

	// Dispatch.
	result := e.dispatch(ctx, tool, args, agent, start)
	return e.complete(ctx, call, agent, debug, start, result)
}

// validate checks args against the tool's spec: required fields first
// so the caller gets MISSING_ARGUMENT with the field name, then the
// compiled schema for type and enum errors.
func (e *Executor) validate(tool *registry.Tool, args map[string]interface{}) *Error {
	for _, required := range tool.Spec.Required {
		if _, present := args[required]; !present {
			return &Error{
				Code:    CodeMissingArgument,
				Message: fmt.Sprintf("missing required argument %q for tool %q", required, tool.Spec.Name),
				Details: map[string]interface{}{"field": required},
			}
		}
	}

	result, err := tool.Schema().Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &Error{Code: CodeValidationError, Message: err.Error()}
	}
	if !result.Valid() {
		details := map[string]interface{}{}
		msgs := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			details[verr.Field()] = verr.Description()
			msgs = append(msgs, verr.String())
		}
		return &Error{
			Code:    CodeValidationError,
			Message: fmt.Sprintf("invalid arguments for tool %q: %v", tool.Spec.Name, msgs),
			Details: details,
		}
	}
	return nil
}

// gateRequest extracts path and command arguments per the
// parameter-name conventions so the confinement rule only runs for
// tools that declare them.
func (e *Executor) gateRequest(tool *registry.Tool, name string, args map[string]interface{}) permission.Request {
	req := permission.Request{Tool: name, Args: args}
	for param := range tool.Spec.Parameters {
		value, present := args[param]
		if !present {
			continue
		}
		str, isString := value.(string)
		if !isString {
			continue
		}
		switch {
		case pathParams[param]:
			req.PathArgs = append(req.PathArgs, str)
		case commandParams[param]:
			req.CommandArgs = append(req.CommandArgs, str)
		}
	}
	return req
}

// dispatch invokes the handler with validated args. A panic inside a
// handler is converted to EXEC_ERROR at this boundary so a long-lived
// process survives a single bad invocation.
func (e *Executor) dispatch(ctx context.Context, tool *registry.Tool, args map[string]interface{}, agent permission.Agent, start time.Time) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("tool", tool.Spec.Name).Interface("panic", r).Msg("Handler panicked")
			result = Result{
				OK: false,
				Err: &Error{
					Code:    CodeExecError,
					Message: fmt.Sprintf("handler for %q panicked: %v", tool.Spec.Name, r),
				},
			}
		}
	}()

	env := &invocationContext{
		gate:    e.gate,
		dataDir: e.dataDir,
		start:   start,
		agent:   agent,
	}

	value, err := tool.Handler(ctx, args, env)
	if err != nil {
		// A deliberate domain failure passes through unmodified;
		// anything else is an execution fault.
		var terr *registry.ToolError
		if errors.As(err, &terr) {
			return Result{OK: false, Err: &Error{Code: terr.Code, Message: terr.Message, Details: terr.Details}}
		}
		return Result{
			OK:  false,
			Err: &Error{Code: CodeExecError, Message: err.Error()},
		}
	}
	return Result{OK: true, Value: value}
}

// complete attaches debug metadata and appends the audit record. The
// audit write is best-effort and never changes the result.
func (e *Executor) complete(ctx context.Context, call router.ToolCall, agent permission.Agent, debug Debug, start time.Time, result Result) Result {
	debug.DurationMS = time.Since(start).Milliseconds()
	result.Debug = debug

	outcome := "ok"
	errorCode := ""
	if !result.OK {
		outcome = "error"
		if result.Err != nil {
			errorCode = result.Err.Code
		}
	}
	e.metrics.RecordInvocation(call.Tool, outcome, time.Since(start).Seconds())

	e.auditLog.Append(ctx, audit.Record{
		TS:           start,
		InvocationID: debug.InvocationID,
		Tool:         call.Tool,
		ArgsRedacted: e.redactor.RedactArgs(call.Args),
		OK:           result.OK,
		ErrorCode:    errorCode,
		DurationMS:   debug.DurationMS,
		Agent:        agent.Name,
	})

	return result
}
