// Package metrics exposes Prometheus metrics for the attendance service.
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

// Manager owns the service's collectors. All recording methods are safe on a
// nil *Manager so tests can skip metrics entirely.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	decisions     *prometheus.CounterVec
	oracleLatency *prometheus.HistogramVec
	notifications *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager with its own registry unless WithRegistry is
// given. Go runtime and process collectors are always registered.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "attendance",
		subsystem:        "api",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.decisions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "decisions_total",
		Help:      "Attendance decisions by outcome and reason",
	}, []string{"outcome", "reason"})

	m.oracleLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "oracle_latency_seconds",
		Help:      "Face similarity oracle latency by strategy and result",
		Buckets:   m.histogramBuckets,
	}, []string{"strategy", "result"})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "late_notifications_total",
		Help:      "Late-arrival notification deliveries by result",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds by route and method",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// RecordDecision counts one attendance decision.
func (m *Manager) RecordDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome, reason).Inc()
}

// ObserveOracle records one oracle call.
func (m *Manager) ObserveOracle(strategy, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.oracleLatency.WithLabelValues(strategy, result).Observe(elapsed.Seconds())
}

// RecordNotification counts one notification delivery.
func (m *Manager) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request.
func (m *Manager) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
