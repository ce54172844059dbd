// Package audit appends one JSON record per tool invocation to an
// append-only log file. Appends are serialized per file path so
// concurrent invocations never interleave partial records.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is one invocation outcome.
type Record struct {
	TS           time.Time              `json:"ts"`
	InvocationID string                 `json:"invocation_id,omitempty"`
	Tool         string                 `json:"tool"`
	ArgsRedacted map[string]interface{} `json:"args_redacted"`
	OK           bool                   `json:"ok"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	DurationMS   int64                  `json:"duration_ms"`
	Agent        string                 `json:"agent,omitempty"`
	TraceID      string                 `json:"trace_id,omitempty"`
}

// pathLocks serializes appends per file path across Logger instances
// that happen to share a file.
var (
	pathLocksMu sync.Mutex
	pathLocks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	pathLocksMu.Lock()
	defer pathLocksMu.Unlock()
	if m, ok := pathLocks[path]; ok {
		return m
	}
	m := &sync.Mutex{}
	pathLocks[path] = m
	return m
}

// Logger appends records to a single audit file.
type Logger struct {
	path string
	mu   *sync.Mutex
	file *os.File
}

// Open creates (if needed) and opens the audit log for appending.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{path: abs, mu: lockFor(abs), file: file}, nil
}

// Append writes one record. Failures are logged and swallowed: an
// audit-write failure must never change a user-facing result.
func (l *Logger) Append(ctx context.Context, rec Record) {
	if l == nil {
		return
	}
	if rec.TS.IsZero() {
		rec.TS = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		rec.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit", trace.WithAttributes(
			attribute.String("audit.tool", rec.Tool),
			attribute.Bool("audit.ok", rec.OK),
		))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("tool", rec.Tool).Msg("Failed to marshal audit record")
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		log.Error().Err(err).Str("path", l.path).Msg("Failed to append audit record")
	}
}

// Path returns the audit file path.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
