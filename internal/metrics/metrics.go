// Package metrics holds the Prometheus instruments of selfdiag. Every
// instrument lives on a private registry so tests and multiple clients do not
// collide. Methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters and histograms recorded by the backend client
// and the diagnosis session.
type Metrics struct {
	registry *prometheus.Registry

	backendRequestsTotal   *prometheus.CounterVec
	backendRequestDuration *prometheus.HistogramVec
	sagaOutcomesTotal      *prometheus.CounterVec
	sagaDuration           *prometheus.HistogramVec
	sessionsStarted        prometheus.Counter
	answersTotal           *prometheus.CounterVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		backendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfdiag_backend_requests_total",
				Help: "Total number of requests sent to the diagnosis backend",
			},
			[]string{"endpoint", "status"},
		),
		backendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selfdiag_backend_request_duration_seconds",
				Help:    "Backend request duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),
		sagaOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfdiag_saga_outcomes_total",
				Help: "Total number of finished sagas by outcome",
			},
			[]string{"saga", "outcome"},
		),
		sagaDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "selfdiag_saga_duration_seconds",
				Help:    "Saga duration in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"saga"},
		),
		sessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "selfdiag_sessions_started_total",
				Help: "Total number of started self-diagnosis sessions",
			},
		),
		answersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "selfdiag_answers_total",
				Help: "Total number of accepted answers by phase",
			},
			[]string{"phase"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBackendRequest records one backend call. status is the HTTP status
// code as text, or "error" when no response arrived.
func (m *Metrics) RecordBackendRequest(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.backendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSaga records a finished saga.
func (m *Metrics) RecordSaga(saga, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaOutcomesTotal.WithLabelValues(saga, outcome).Inc()
	m.sagaDuration.WithLabelValues(saga).Observe(duration.Seconds())
}

// RecordSessionStart counts a Start of a session.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// RecordAnswer counts an accepted answer in phase.
func (m *Metrics) RecordAnswer(phase string) {
	if m == nil {
		return
	}
	m.answersTotal.WithLabelValues(phase).Inc()
}
