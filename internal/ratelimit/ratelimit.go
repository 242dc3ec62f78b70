// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package ratelimit implements a sliding-window request limiter keyed by
// service and caller.
//
// Each key tracks the ordered timestamps of its admitted requests. A request
// is admitted when fewer than MaxRequests timestamps fall inside the trailing
// window. Policies may additionally impose a block: once a caller exceeds the
// window, further requests are rejected until the block expires, regardless
// of window occupancy.
//
// This limiter guards expensive domain operations (upstream fetches,
// sampling) and is independent of the per-IP HTTP middleware in front of it.
package ratelimit

import (
	"sync"
	"time"

	"github.com/tomtom215/pelagos/internal/metrics"
)

// Policy configures one named limit.
type Policy struct {
	// MaxRequests allowed inside Window.
	MaxRequests int

	// Window is the trailing interval measured over.
	Window time.Duration

	// BlockFor, when non-zero, blocks a caller for this long after it
	// exceeds the window.
	BlockFor time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool

	// RetryAfter is the wait until the next request could be admitted.
	// Zero when Allowed.
	RetryAfter time.Duration

	// Remaining is the number of requests still admissible in the window.
	Remaining int
}

type entry struct {
	timestamps   []time.Time
	blockedUntil time.Time
}

// Limiter is a sliding-window limiter over service|caller keys.
// All methods are safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	policies map[string]Policy
	entries  map[string]*entry
	now      func() time.Time

	lastCleanup time.Time
}

// cleanupInterval bounds how often the lazy purge walks all entries.
const cleanupInterval = time.Minute

// New creates a Limiter with the given named policies.
func New(policies map[string]Policy) *Limiter {
	return &Limiter{
		policies: policies,
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
}

// NewWithClock creates a Limiter with an injected clock for tests.
func NewWithClock(policies map[string]Policy, now func() time.Time) *Limiter {
	l := New(policies)
	l.now = now
	return l
}

// Allow checks whether one request for the named service by the given caller
// may proceed, and records it if so. Unknown services are always admitted.
func (l *Limiter) Allow(service, caller string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	policy, ok := l.policies[service]
	if !ok {
		return Decision{Allowed: true}
	}

	now := l.now()
	l.maybeCleanup(now)

	key := service + "|" + caller
	e := l.entries[key]
	if e == nil {
		e = &entry{}
		l.entries[key] = e
	}

	if now.Before(e.blockedUntil) {
		metrics.RateLimitRejected.WithLabelValues(service, "blocked").Inc()
		return Decision{Allowed: false, RetryAfter: e.blockedUntil.Sub(now)}
	}

	// Drop timestamps that left the window.
	cutoff := now.Add(-policy.Window)
	keep := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	e.timestamps = keep

	if len(e.timestamps) >= policy.MaxRequests {
		retryAfter := e.timestamps[0].Add(policy.Window).Sub(now)
		if policy.BlockFor > 0 {
			e.blockedUntil = now.Add(policy.BlockFor)
			retryAfter = policy.BlockFor
		}
		metrics.RateLimitRejected.WithLabelValues(service, "window").Inc()
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	e.timestamps = append(e.timestamps, now)
	metrics.RateLimitAllowed.WithLabelValues(service).Inc()
	return Decision{
		Allowed:   true,
		Remaining: policy.MaxRequests - len(e.timestamps),
	}
}

// Reset clears all state for a service|caller pair.
func (l *Limiter) Reset(service, caller string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, service+"|"+caller)
}

// maybeCleanup drops entries whose newest timestamp is older than twice the
// largest policy window and whose block has expired. Called with mu held.
func (l *Limiter) maybeCleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < cleanupInterval {
		return
	}
	l.lastCleanup = now

	var maxWindow time.Duration
	for _, p := range l.policies {
		if p.Window > maxWindow {
			maxWindow = p.Window
		}
	}
	cutoff := now.Add(-2 * maxWindow)

	for key, e := range l.entries {
		if now.Before(e.blockedUntil) {
			continue
		}
		if len(e.timestamps) == 0 || e.timestamps[len(e.timestamps)-1].Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
