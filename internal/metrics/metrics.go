// Package metrics exposes Prometheus counters for the routing and
// execution pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics
// is valid and records nothing, so components take it optionally.
type Metrics struct {
	registry *prometheus.Registry

	RoutingStageTotal      *prometheus.CounterVec
	RoutingFailuresTotal   *prometheus.CounterVec
	CacheEventsTotal       *prometheus.CounterVec
	PermissionDenialsTotal *prometheus.CounterVec
	InvocationsTotal       *prometheus.CounterVec
	InvocationDuration     *prometheus.HistogramVec
	ModelCallsTotal        *prometheus.CounterVec
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RoutingStageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_routing_stage_total",
				Help: "Resolutions per routing stage",
			},
			[]string{"stage"},
		),
		RoutingFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_routing_failures_total",
				Help: "Routing failures by error code",
			},
			[]string{"code"},
		),
		CacheEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_cache_events_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
		PermissionDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_permission_denials_total",
				Help: "Permission gate denials by rule code",
			},
			[]string{"code"},
		),
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_invocations_total",
				Help: "Tool invocations by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_invocation_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		ModelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_model_calls_total",
				Help: "Upstream model calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
	}

	registry.MustRegister(
		m.RoutingStageTotal,
		m.RoutingFailuresTotal,
		m.CacheEventsTotal,
		m.PermissionDenialsTotal,
		m.InvocationsTotal,
		m.InvocationDuration,
		m.ModelCallsTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Nil-safe recording helpers.

func (m *Metrics) RecordStage(stage string) {
	if m != nil {
		m.RoutingStageTotal.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) RecordRoutingFailure(code string) {
	if m != nil {
		m.RoutingFailuresTotal.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) RecordCacheEvent(result string) {
	if m != nil {
		m.CacheEventsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) RecordDenial(code string) {
	if m != nil {
		m.PermissionDenialsTotal.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) RecordInvocation(tool, outcome string, seconds float64) {
	if m != nil {
		m.InvocationsTotal.WithLabelValues(tool, outcome).Inc()
		m.InvocationDuration.WithLabelValues(tool).Observe(seconds)
	}
}

func (m *Metrics) RecordModelCall(provider, outcome string) {
	if m != nil {
		m.ModelCallsTotal.WithLabelValues(provider, outcome).Inc()
	}
}
