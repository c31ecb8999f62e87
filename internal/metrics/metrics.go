package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Dispatch results
const (
	DispatchFinished = "finished"
	DispatchRejected = "rejected"
	DispatchNotFound = "not_found"
	DispatchError    = "error"
)

// Metrics holds all Prometheus metrics for listmail
type Metrics struct {
	// Dispatch engine
	DispatchesTotal         *prometheus.CounterVec
	AttemptsTotal           *prometheus.CounterVec
	DispatchDurationSeconds prometheus.Histogram
	DispatchesActive        prometheus.Gauge

	// Mailings by lifecycle state, refreshed by the collector
	Mailings *prometheus.GaugeVec

	// HTTP
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	// System
	UptimeSeconds prometheus.Gauge
	Goroutines    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listmail_dispatches_total",
				Help: "Total number of dispatch requests by result",
			},
			[]string{"result"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listmail_attempts_total",
				Help: "Total number of per-recipient delivery attempts",
			},
			[]string{"status"},
		),
		DispatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "listmail_dispatch_duration_seconds",
				Help:    "Duration of completed dispatch runs in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900, 3600},
			},
		),
		DispatchesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "listmail_dispatches_active",
				Help: "Number of dispatch runs in progress in this process",
			},
		),
		Mailings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "listmail_mailings",
				Help: "Number of mailings by status",
			},
			[]string{"status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "listmail_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "listmail_goroutines",
				Help: "Number of active goroutines",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.DispatchesTotal,
		m.AttemptsTotal,
		m.DispatchDurationSeconds,
		m.DispatchesActive,
		m.Mailings,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.UptimeSeconds,
		m.Goroutines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncDispatch counts a dispatch request by result
func IncDispatch(result string) {
	m := Global()
	if m != nil {
		m.DispatchesTotal.WithLabelValues(result).Inc()
	}
}

// IncAttempt counts one recorded delivery attempt
func IncAttempt(status string) {
	m := Global()
	if m != nil {
		m.AttemptsTotal.WithLabelValues(status).Inc()
	}
}

// DispatchStarted marks a run as active and returns a func that records its
// duration and clears the active mark.
func DispatchStarted() func() {
	m := Global()
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.DispatchesActive.Inc()
	return func() {
		m.DispatchesActive.Dec()
		m.DispatchDurationSeconds.Observe(time.Since(start).Seconds())
	}
}
