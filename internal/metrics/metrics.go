// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package metrics provides Prometheus instrumentation for Pelagos:
// upstream tile fetches, circuit breakers, rate limiting, capability
// refreshes, area sampling, and API endpoints. All collectors are
// registered with the default registry via promauto and exposed at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tile Fetch Metrics
	TileFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_fetch_total",
			Help: "Total number of upstream tile fetch attempts",
		},
		[]string{"layer", "outcome"}, // outcome: "ok", "fallback_matrix", "fallback_time", "blank", "error"
	)

	TileFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_fetch_duration_seconds",
			Help:    "Upstream tile fetch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"layer"},
	)

	TileFetchAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_fetch_attempts_per_request",
			Help:    "Number of upstream attempts consumed per tile request",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7},
		},
		[]string{"layer"},
	)

	TileBlankServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_blank_served_total",
			Help: "Total number of sentinel blank tiles served",
		},
		[]string{"layer", "reason"}, // reason: "rate_limited", "breaker_open", "upstream_failed", "not_configured"
	)

	UpstreamInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "upstream_requests_in_flight",
			Help: "Current number of in-flight upstream requests",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Rate Limiter Metrics
	RateLimitAllowed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_allowed_total",
			Help: "Total number of requests admitted by the sliding-window limiter",
		},
		[]string{"service"},
	)

	RateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_rejected_total",
			Help: "Total number of requests rejected by the sliding-window limiter",
		},
		[]string{"service", "reason"}, // reason: "window", "blocked"
	)

	// Capability Cache Metrics
	CapabilityRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_refresh_total",
			Help: "Total number of capability document refreshes",
		},
		[]string{"layer", "outcome"}, // outcome: "ok", "error", "synthesized"
	)

	CapabilityTimesKnown = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "capability_times_known",
			Help: "Number of known valid timestamps per layer",
		},
		[]string{"layer"},
	)

	// Sampler Metrics
	SampleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raster_sample_duration_seconds",
			Help:    "Area statistics sampling duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"layer"},
	)

	SampleTilesTouched = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raster_sample_tiles_touched",
			Help:    "Tiles touched per area sample request",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"layer"},
	)

	// Feature Detection Metrics
	FeatureDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_detections_total",
			Help: "Total number of detected oceanographic features",
		},
		[]string{"class"}, // "edge", "filament", "eddy"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordTileFetch records one completed tile request with its final outcome.
func RecordTileFetch(layer, outcome string, attempts int, duration time.Duration) {
	TileFetchTotal.WithLabelValues(layer, outcome).Inc()
	TileFetchDuration.WithLabelValues(layer).Observe(duration.Seconds())
	TileFetchAttempts.WithLabelValues(layer).Observe(float64(attempts))
}

// RecordBlankTile records a sentinel tile served in place of real imagery.
func RecordBlankTile(layer, reason string) {
	TileBlankServed.WithLabelValues(layer, reason).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSample records one per-layer area sampling pass.
func RecordSample(layer string, tilesTouched int, duration time.Duration) {
	SampleDuration.WithLabelValues(layer).Observe(duration.Seconds())
	SampleTilesTouched.WithLabelValues(layer).Observe(float64(tilesTouched))
}
