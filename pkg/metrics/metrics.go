// Package metrics provides Prometheus metrics for the tool gateway.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics collects and exposes gateway-related Prometheus metrics.
type GatewayMetrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge

	// Rate limiting metrics
	RateLimitRejections *prometheus.CounterVec
	WeightConsumed      prometheus.Counter

	// Upstream metrics
	APIErrors      *prometheus.CounterVec
	ClientRebuilds prometheus.Counter
}

// NewGatewayMetrics creates a new gateway metrics collector backed by its
// own registry.
func NewGatewayMetrics() *GatewayMetrics {
	registry := prometheus.NewRegistry()

	gm := &GatewayMetrics{
		registry: registry,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of tool requests by outcome",
			},
			[]string{"tool", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Tool request duration end to end",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"tool"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_active_requests",
				Help: "Number of tool requests currently in flight",
			},
		),

		RateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_rejections_total",
				Help: "Requests rejected by the rate limiter, by window",
			},
			[]string{"window"},
		),
		WeightConsumed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_request_weight_consumed_total",
				Help: "Total exchange request weight admitted",
			},
		),

		APIErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binance_api_errors_total",
				Help: "Exchange API errors by error code",
			},
			[]string{"code"},
		),
		ClientRebuilds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_client_rebuilds_total",
				Help: "Times the exchange client was rebuilt",
			},
		),
	}

	gm.registerAll()

	return gm
}

func (gm *GatewayMetrics) registerAll() {
	gm.registry.MustRegister(
		gm.RequestsTotal,
		gm.RequestDuration,
		gm.ActiveRequests,
		gm.RateLimitRejections,
		gm.WeightConsumed,
		gm.APIErrors,
		gm.ClientRebuilds,
	)
}

// Registry returns the prometheus registry.
func (gm *GatewayMetrics) Registry() *prometheus.Registry {
	return gm.registry
}

// --- Helper methods for recording metrics ---

// RecordRequest records one finished tool request.
func (gm *GatewayMetrics) RecordRequest(tool, status string, durationSec float64) {
	gm.RequestsTotal.WithLabelValues(tool, status).Inc()
	if durationSec > 0 {
		gm.RequestDuration.WithLabelValues(tool).Observe(durationSec)
	}
}

// RequestStarted marks a request entering the gateway.
func (gm *GatewayMetrics) RequestStarted() {
	gm.ActiveRequests.Inc()
}

// RequestFinished marks a request leaving the gateway.
func (gm *GatewayMetrics) RequestFinished() {
	gm.ActiveRequests.Dec()
}

// RecordRateLimitRejection records a local rate limiter rejection.
// The window is "minute", "second", or "policy" for per-class gates.
func (gm *GatewayMetrics) RecordRateLimitRejection(window string) {
	gm.RateLimitRejections.WithLabelValues(window).Inc()
}

// RecordWeight records admitted request weight.
func (gm *GatewayMetrics) RecordWeight(weight int) {
	if weight > 0 {
		gm.WeightConsumed.Add(float64(weight))
	}
}

// RecordAPIError records an exchange error by its numeric code.
func (gm *GatewayMetrics) RecordAPIError(code int) {
	gm.APIErrors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordClientRebuild records a client teardown and rebuild.
func (gm *GatewayMetrics) RecordClientRebuild() {
	gm.ClientRebuilds.Inc()
}

// Global instance for convenience
var defaultMetrics *GatewayMetrics
var once sync.Once

// Default returns the default global metrics instance.
func Default() *GatewayMetrics {
	once.Do(func() {
		defaultMetrics = NewGatewayMetrics()
	})
	return defaultMetrics
}
