// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Read cache
	CacheRequests *prometheus.CounterVec
	CacheErrors   *prometheus.CounterVec

	// Writes
	TxTransitions *prometheus.CounterVec
	TxGasUsed     *prometheus.HistogramVec

	// Upstream services
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Push
	WSClients prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics registers every metric on reg. A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "alphamarket"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		CacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Cached reads by key name and outcome (hit or miss)",
		}, []string{"name", "outcome"}),
		CacheErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_errors_total",
			Help:      "Failed fetches by key name",
		}, []string{"name"}),

		TxTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "transitions_total",
			Help:      "Write lifecycle transitions by operation and state",
		}, []string{"kind", "state"}),
		TxGasUsed: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "gas_used",
			Help:      "Gas used by confirmed writes",
			Buckets:   []float64{25_000, 50_000, 100_000, 200_000, 300_000, 500_000, 600_000},
		}, []string{"kind"}),

		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream API calls by service and status",
		}, []string{"service", "status"}),
		UpstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Upstream API latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),

		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),

		gatherer: reg,
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CacheHit records a read served from cache.
func (m *Metrics) CacheHit(name string) {
	m.CacheRequests.WithLabelValues(name, "hit").Inc()
}

// CacheMiss records a read that needed a fetch.
func (m *Metrics) CacheMiss(name string) {
	m.CacheRequests.WithLabelValues(name, "miss").Inc()
}

// CacheError records a failed fetch.
func (m *Metrics) CacheError(name string) {
	m.CacheErrors.WithLabelValues(name).Inc()
}

// OnTxEvent records a lifecycle transition.
func (m *Metrics) OnTxEvent(ev domain.TxEvent) {
	m.TxTransitions.WithLabelValues(string(ev.Kind), string(ev.State)).Inc()
	if ev.State == domain.TxConfirmed && ev.GasUsed > 0 {
		m.TxGasUsed.WithLabelValues(string(ev.Kind)).Observe(float64(ev.GasUsed))
	}
}

// RecordUpstream records one upstream call.
func (m *Metrics) RecordUpstream(service string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.UpstreamRequests.WithLabelValues(service, status).Inc()
	m.UpstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
}
