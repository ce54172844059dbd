package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordStage("fast_path")
		m.RecordRoutingFailure("ROUTING_NO_MATCH")
		m.RecordCacheEvent("hit")
		m.RecordDenial("DENIED_TOOL")
		m.RecordInvocation("remember", "ok", 0.01)
		m.RecordModelCall("openai", "ok")
	})
}

func TestMetricsExposed(t *testing.T) {
	m := New()
	m.RecordStage("fast_path")
	m.RecordInvocation("remember", "ok", 0.02)
	m.RecordDenial("DENIED_PATH_ALLOWLIST")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "assistant_routing_stage_total")
	assert.Contains(t, body, "assistant_invocations_total")
	assert.Contains(t, body, "assistant_permission_denials_total")
}
