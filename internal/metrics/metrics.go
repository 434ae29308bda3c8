// Package metrics exposes Prometheus instruments for the playground.
//
// A private registry is used instead of prometheus.DefaultRegisterer so
// tests (and several servers in one process) never collide on registration.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	activeSessions  *prometheus.GaugeVec
	compileDuration *prometheus.HistogramVec
	runDuration     *prometheus.HistogramVec
	outputBytes     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_sessions_total",
				Help: "Execution sessions by transport and terminal state.",
			},
			[]string{"transport", "state"},
		),
		activeSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "playground_sessions_active",
				Help: "Execution sessions currently in progress.",
			},
			[]string{"transport"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_compile_duration_seconds",
				Help:    "Time spent in the compiler.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"result"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_run_duration_seconds",
				Help:    "Time the compiled program was connected to the client.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"transport"},
		),
		outputBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_output_bytes_total",
				Help: "Program output forwarded to clients.",
			},
			[]string{"transport", "stream"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_http_requests_total",
				Help: "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_request_duration_seconds",
				Help:    "HTTP request latency. Streaming routes last as long as the session.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.sessions,
		m.activeSessions,
		m.compileDuration,
		m.runDuration,
		m.outputBytes,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted(transport string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionFinished(transport, state string) {
	if m == nil {
		return
	}
	m.activeSessions.WithLabelValues(transport).Dec()
	m.sessions.WithLabelValues(transport, state).Inc()
}

func (m *Metrics) CompileObserved(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.compileDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) RunObserved(transport string, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(transport).Observe(d.Seconds())
}

func (m *Metrics) OutputForwarded(transport, stream string, n int) {
	if m == nil {
		return
	}
	m.outputBytes.WithLabelValues(transport, stream).Add(float64(n))
}

func (m *Metrics) RequestObserved(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
