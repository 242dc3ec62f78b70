// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package breaker wraps sony/gobreaker with per-upstream circuit breakers.
//
// Each upstream service gets its own breaker, created lazily on first use.
// A breaker opens after a configured number of consecutive failures, stays
// open for the reset timeout, then admits a bounded number of trial requests
// in half-open state. While open, calls fail fast without touching the
// network.
//
// DETERMINISM NOTE: gobreaker uses real time for its timeout calculations.
// The timing determines when to recover from failures, not data integrity.
// Tests that need transitions use short reset timeouts.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
)

// ErrOpen is returned when a call is rejected because the breaker is open or
// the half-open request budget is exhausted.
var ErrOpen = errors.New("breaker: circuit open")

// Config holds breaker tuning shared by all upstreams.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before trial
	// requests are admitted.
	ResetTimeout time.Duration

	// HalfOpenRequests is the number of trial requests admitted in
	// half-open state.
	HalfOpenRequests uint32
}

// Registry holds one circuit breaker per upstream service name.
// Breakers are created lazily and retained for the process lifetime.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewRegistry creates a breaker registry with the given shared tuning.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
}

// get returns the breaker for a service, creating it on first use.
func (r *Registry) get(name string) *gobreaker.CircuitBreaker[[]byte] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	threshold := r.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: r.cfg.HalfOpenRequests,
		Timeout:     r.cfg.ResetTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= threshold
			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	r.breakers[name] = cb
	return cb
}

// Execute runs op through the named service's breaker. When the breaker
// rejects the call, ErrOpen is returned and op is never invoked. Context
// cancellation is checked before the call; op itself is responsible for
// honoring ctx during the request.
func (r *Registry) Execute(ctx context.Context, service string, op func() ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cb := r.get(service)
	result, err := cb.Execute(op)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(service, "rejected").Inc()
			return nil, ErrOpen
		}
		metrics.CircuitBreakerRequests.WithLabelValues(service, "failure").Inc()
		counts := cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(service).Set(float64(counts.ConsecutiveFailures))
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(service, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(service).Set(0)
	return result, nil
}

// State returns the current state of the named service's breaker as a
// string: "closed", "half-open" or "open".
func (r *Registry) State(service string) string {
	return stateToString(r.get(service).State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
