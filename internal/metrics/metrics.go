// Package metrics exposes the gateway's Prometheus metrics.
//
// Metrics:
//   - translate_gateway_requests_total: chat requests by mode and status code
//   - translate_gateway_backend_calls_total: backend calls by outcome
//   - translate_gateway_backend_duration_seconds: backend latency by outcome
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "translate_gateway"

// Backend call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
}

// NewCollector registers the gateway metrics. A nil registry gets a fresh
// one so tests never collide on the default registry.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of chat completion requests handled",
			},
			[]string{"mode", "status"},
		),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Translation backend calls by outcome",
			},
			[]string{"outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_duration_seconds",
				Help:      "Duration of translation backend calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(c.requestsTotal, c.backendCalls, c.backendDuration)
	return c
}

// RecordRequest counts one chat request. mode is "stream" or "json".
func (c *Collector) RecordRequest(mode string, status int) {
	c.requestsTotal.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

func (c *Collector) RecordBackend(outcome string, d time.Duration) {
	c.backendCalls.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		c.backendDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
