package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by the offline worker.
const (
	FetchNetwork     = "network"
	FetchCache       = "cache"
	FetchMiss        = "miss"
	FetchPassthrough = "passthrough"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// that several servers (or tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Bridge metrics
	BridgeInits    *prometheus.CounterVec
	BridgeCommands *prometheus.CounterVec

	// Worker metrics
	WorkerFetches    *prometheus.CounterVec
	WorkerCacheStore *prometheus.CounterVec
	WorkerLifecycle  *prometheus.CounterVec
	BucketsDeleted   prometheus.Counter

	// Upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a new metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolkeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		BridgeInits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_bridge_inits_total",
				Help: "Startup sequences by outcome",
			},
			[]string{"outcome"},
		),
		BridgeCommands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_bridge_commands_total",
				Help: "Outbound commands received by the bridge",
			},
			[]string{"tag", "outcome"},
		),

		WorkerFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_worker_fetches_total",
				Help: "Requests seen by the offline worker, by how they were answered",
			},
			[]string{"outcome"},
		),
		WorkerCacheStore: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_worker_cache_stores_total",
				Help: "Background cache stores after network responses",
			},
			[]string{"outcome"},
		),
		WorkerLifecycle: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_worker_lifecycle_total",
				Help: "Worker lifecycle events",
			},
			[]string{"event", "outcome"},
		),
		BucketsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "poolkeeper_worker_buckets_deleted_total",
				Help: "Stale cache buckets deleted on activation",
			},
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "poolkeeper_upstream_duration_seconds",
				Help:    "Upstream fetch duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "poolkeeper_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "poolkeeper_ws_connections",
				Help: "Number of active port connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "poolkeeper_ws_messages_total",
				Help: "Total number of port messages",
			},
			[]string{"direction"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "poolkeeper_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordInit records the outcome of a bridge startup sequence.
func (m *Metrics) RecordInit(outcome string) {
	if m == nil {
		return
	}
	m.BridgeInits.WithLabelValues(outcome).Inc()
}

// RecordCommand records an outbound command handled by the bridge.
func (m *Metrics) RecordCommand(tag, outcome string) {
	if m == nil {
		return
	}
	m.BridgeCommands.WithLabelValues(tag, outcome).Inc()
}

// RecordFetch records how an intercepted (or passed through) request was answered.
func (m *Metrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	m.WorkerFetches.WithLabelValues(outcome).Inc()
}

// RecordCacheStore records a background cache store.
func (m *Metrics) RecordCacheStore(outcome string) {
	if m == nil {
		return
	}
	m.WorkerCacheStore.WithLabelValues(outcome).Inc()
}

// RecordLifecycle records a worker lifecycle event.
func (m *Metrics) RecordLifecycle(event, outcome string) {
	if m == nil {
		return
	}
	m.WorkerLifecycle.WithLabelValues(event, outcome).Inc()
}

// AddBucketsDeleted counts stale buckets removed during activation.
func (m *Metrics) AddBucketsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BucketsDeleted.Add(float64(n))
}

// RecordUpstream records an upstream fetch duration.
func (m *Metrics) RecordUpstream(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetBreakerState records the current state of a named breaker.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// IncWSConnections increments active port connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements active port connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// RecordWSMessage records a port message in the given direction.
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction).Inc()
}
