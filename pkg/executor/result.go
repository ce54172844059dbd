package executor

import (
	"time"
)

// Error codes owned by the executor. Gate and routing codes pass
// through unchanged.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeMissingArgument = "MISSING_ARGUMENT"
	CodeExecError       = "EXEC_ERROR"
)

// Error is the discriminated failure carried by a Result.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Debug is attached to every result regardless of outcome.
type Debug struct {
	Stage        string    `json:"stage"`
	Start        time.Time `json:"start"`
	DurationMS   int64     `json:"duration_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Model        string    `json:"model,omitempty"`
	InvocationID string    `json:"invocation_id"`
}

// Result is the outcome contract returned by every invocation.
// Value is present iff OK; Err is present iff !OK.
type Result struct {
	OK    bool        `json:"ok"`
	Value interface{} `json:"result,omitempty"`
	Err   *Error      `json:"error,omitempty"`
	Debug Debug       `json:"debug"`
}

// policyCodes is the "user/policy error" class: the caller did
// something fixable, nothing internal broke.
var policyCodes = map[string]bool{
	CodeValidationError:        true,
	CodeMissingArgument:        true,
	"DENIED_TOOL":              true,
	"CONFIRMATION_REQUIRED":    true,
	"DENIED_AGENT_TOOLSET":     true,
	"DENIED_PATH_ALLOWLIST":    true,
	"DENIED_COMMAND_ALLOWLIST": true,
	"ROUTING_NO_MATCH":         true,
}

// IsPolicyCode reports whether a code belongs to the user/policy
// error class, as opposed to internal/execution errors. The CLI maps
// the two classes to distinct exit statuses.
func IsPolicyCode(code string) bool {
	return policyCodes[code]
}
