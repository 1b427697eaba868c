// Package metrics provides Prometheus metrics for the workspace service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tutor invocation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TutorInvocationsTotal   *prometheus.CounterVec
	TutorInvocationDuration prometheus.Histogram

	WorkspacesCreatedTotal prometheus.Counter
	RateLimitedTotal       prometheus.Counter
}

// New registers every collector on a fresh registry, so several instances
// can coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esol_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "esol_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		TutorInvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "esol_tutor_invocations_total",
				Help: "Total number of tutor invocations by outcome",
			},
			[]string{"outcome"},
		),
		TutorInvocationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "esol_tutor_invocation_duration_seconds",
				Help:    "Duration of tutor invocations in seconds",
				Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32, 64, 120},
			},
		),
		WorkspacesCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "esol_workspaces_created_total",
				Help: "Total number of workspaces created",
			},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "esol_rate_limited_total",
				Help: "Total number of requests rejected by the tutor rate limit",
			},
		),
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveTutor records one tutor invocation.
func (m *Metrics) ObserveTutor(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.TutorInvocationsTotal.WithLabelValues(outcome).Inc()
	m.TutorInvocationDuration.Observe(elapsed.Seconds())
}

// WorkspaceCreated counts a created workspace.
func (m *Metrics) WorkspaceCreated() {
	if m == nil {
		return
	}
	m.WorkspacesCreatedTotal.Inc()
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
