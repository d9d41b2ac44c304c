// Package metrics provides the Prometheus-backed ports.Metrics
// implementation for the gateway dataplane.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/svcgate/gateway/ports"
)

// Collector holds all Prometheus metrics for the gateway dataplane.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CacheHits       *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	UpstreamRetries *prometheus.CounterVec
}

// New creates a new metrics collector registered against the default
// Prometheus registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global registry collisions between
// parallel test runs.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcgate",
				Name:      "requests_total",
				Help:      "Total number of gateway-proxied requests",
			},
			[]string{"connector", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "svcgate",
				Name:      "request_duration_seconds",
				Help:      "End-to-end request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"connector", "endpoint", "status"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcgate",
				Name:      "response_cache_results_total",
				Help:      "Response cache lookups by hit/miss outcome",
			},
			[]string{"connector", "endpoint", "result"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "svcgate",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per connector (0=closed, 1=open, 2=half_open)",
			},
			[]string{"connector"},
		),
		UpstreamRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "svcgate",
				Name:      "upstream_retries_total",
				Help:      "Total number of upstream request retries",
			},
			[]string{"connector"},
		),
	}
}

// ObserveRequest records a completed dataplane request (C17).
func (c *Collector) ObserveRequest(connectorSlug, endpointName string, status int, latencyMs int64, cached bool) {
	statusLabel := strconv.Itoa(status)
	c.RequestsTotal.WithLabelValues(connectorSlug, endpointName, statusLabel).Inc()
	c.RequestDuration.WithLabelValues(connectorSlug, endpointName, statusLabel).Observe(float64(latencyMs) / 1000)

	result := "miss"
	if cached {
		result = "hit"
	}
	c.CacheHits.WithLabelValues(connectorSlug, endpointName, result).Inc()
}

// ObserveBreakerState records a circuit breaker's current state (C6).
func (c *Collector) ObserveBreakerState(slug string, state int) {
	c.BreakerState.WithLabelValues(slug).Set(float64(state))
}

// ObserveUpstreamRetry records one retried upstream attempt (C14).
func (c *Collector) ObserveUpstreamRetry(slug string) {
	c.UpstreamRetries.WithLabelValues(slug).Inc()
}

var _ ports.Metrics = (*Collector)(nil)
