package logger

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Redactor replaces sensitive values in strings and argument maps.
type Redactor struct {
	patterns   []*regexp.Regexp
	secretKeys []string
}

// NewRedactor creates a redactor with the default pattern set.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Passwords and generic secrets in key=value form
			regexp.MustCompile(`(?i)password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(?i)token["\s:=]+[a-zA-Z0-9._-]{20,}`),

			// AWS access keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		},
		secretKeys: []string{"password", "secret", "token", "api_key", "apikey", "credential"},
	}
}

// AddPattern adds a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces sensitive substrings with a placeholder.
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// RedactArgs returns a copy of a tool-argument map safe for the audit
// log: secret-named keys are masked wholesale, string values pass
// through pattern redaction, and everything else is kept as-is.
func (r *Redactor) RedactArgs(args map[string]interface{}) map[string]interface{} {
	if args == nil {
		return nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if r.isSecretKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = r.Redact(val)
		case map[string]interface{}:
			out[k] = r.RedactArgs(val)
		default:
			out[k] = val
		}
	}
	return out
}

func (r *Redactor) isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.secretKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Wrap wraps an io.Writer so everything written through it is
// redacted.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(string(p))
	n, err := w.writer.Write([]byte(redacted))
	if err != nil {
		return n, fmt.Errorf("redacting write: %w", err)
	}
	// Report the original length so zerolog does not treat the
	// shorter redacted write as an error.
	return len(p), nil
}
