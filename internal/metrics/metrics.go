// Package metrics exposes prometheus instrumentation for the transform
// pipeline on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics counts pipeline activity. All methods are safe on a
// nil receiver so instrumentation stays optional for embedders.
// Labels are bounded sets only (gateway names, result kinds) to avoid
// cardinality explosions.
type PipelineMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	executions   *prometheus.CounterVec
	stageDur     *prometheus.HistogramVec
	loadFailures *prometheus.CounterVec
	redirects    *prometheus.CounterVec
	rateLimited  prometheus.Counter
}

// New returns a fresh registry with standard collectors plus the
// pipeline metric set.
func New() *PipelineMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &PipelineMetrics{
		reg: reg,
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_executions_total",
			Help: "Pipeline executions by gateway and result",
		}, []string{"gateway", "result"}),
		stageDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Stage latency by stage name",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"stage"}),
		loadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transform_load_failures_total",
			Help: "Transform load/validation failures by role and error kind",
		}, []string{"role", "kind"}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redirect_follow_total",
			Help: "Redirect follower outcomes",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_requests_rate_limited_total",
			Help: "Requests denied by the per-IP rate limiter",
		}),
	}

	reg.MustRegister(m.executions, m.stageDur, m.loadFailures, m.redirects, m.rateLimited)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry for scraping.
func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Execution records a finished pipeline run.
func (m *PipelineMetrics) Execution(gateway, result string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(gateway, result).Inc()
}

// StageDuration records one stage's latency in seconds.
func (m *PipelineMetrics) StageDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDur.WithLabelValues(stage).Observe(seconds)
}

// LoadFailure records a transform load or validation failure.
func (m *PipelineMetrics) LoadFailure(role, kind string) {
	if m == nil {
		return
	}
	m.loadFailures.WithLabelValues(role, kind).Inc()
}

// Redirect records a redirect follower outcome: passthrough, resolved
// or unresolved.
func (m *PipelineMetrics) Redirect(outcome string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(outcome).Inc()
}

// RateLimited records a request denied by the rate limiter.
func (m *PipelineMetrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
