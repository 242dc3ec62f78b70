// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package capability caches the valid imagery timestamps per layer.
//
// Upstream catalogs advertise their time dimension through WMS/WMTS
// GetCapabilities documents. Fetching and parsing those is slow, so results
// are cached with a TTL. When the catalog is unreachable or unparseable the
// cache synthesizes a fallback of recent UTC midnights; tile requests then
// resolve against those and rely on the fetcher's day-stepping fallback.
package capability

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/registry"
)

// fallbackDays is how many UTC midnights are synthesized when the upstream
// catalog cannot be read.
const fallbackDays = 3

// Source fetches a raw GetCapabilities document for a layer's provider.
type Source interface {
	FetchCapabilities(ctx context.Context, preset registry.LayerPreset) ([]byte, error)
}

// Cache holds per-layer timestamp lists with a TTL.
// All methods are safe for concurrent use.
type Cache struct {
	source    Source
	ttl       time.Duration
	maxWindow time.Duration
	now       func() time.Time

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	inflight map[string]chan struct{}
}

type cacheEntry struct {
	times       []time.Time
	synthesized bool
	fetchedAt   time.Time
}

// New creates a capability cache over the given source.
func New(source Source, ttl, maxWindow time.Duration) *Cache {
	return &Cache{
		source:    source,
		ttl:       ttl,
		maxWindow: maxWindow,
		now:       time.Now,
		entries:   make(map[string]*cacheEntry),
		inflight:  make(map[string]chan struct{}),
	}
}

// NewWithClock creates a Cache with an injected clock for tests.
func NewWithClock(source Source, ttl, maxWindow time.Duration, now func() time.Time) *Cache {
	c := New(source, ttl, maxWindow)
	c.now = now
	return c
}

// Times returns the ascending valid timestamps for a layer, refreshing the
// cached entry when stale. It never returns an error: on upstream failure a
// synthesized fallback list is returned and cached.
func (c *Cache) Times(ctx context.Context, preset registry.LayerPreset) []time.Time {
	times, _ := c.Catalog(ctx, preset)
	return times
}

// Catalog returns the ascending timestamps for a layer and whether they were
// synthesized because the upstream catalog could not be read. The index
// endpoint uses the flag to report catalog trouble to clients.
func (c *Cache) Catalog(ctx context.Context, preset registry.LayerPreset) ([]time.Time, bool) {
	c.mu.Lock()
	e, ok := c.entries[preset.Key]
	now := c.now()
	if ok && now.Sub(e.fetchedAt) < c.ttl {
		times, synthesized := e.times, e.synthesized
		c.mu.Unlock()
		return times, synthesized
	}
	c.mu.Unlock()

	return c.refresh(ctx, preset)
}

// Refresh forces a fetch for a layer regardless of TTL. Used by the
// background refresher so interactive requests rarely pay the fetch cost.
func (c *Cache) Refresh(ctx context.Context, preset registry.LayerPreset) {
	c.refresh(ctx, preset)
}

// refresh fetches and stores one layer's catalog. Concurrent callers for the
// same layer are coalesced into a single upstream fetch; losers wait for the
// winner's entry instead of issuing their own request.
func (c *Cache) refresh(ctx context.Context, preset registry.LayerPreset) ([]time.Time, bool) {
	c.mu.Lock()
	if ch, ok := c.inflight[preset.Key]; ok {
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return FallbackTimes(c.now(), fallbackDays), true
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[preset.Key]; ok {
			return e.times, e.synthesized
		}
		return FallbackTimes(c.now(), fallbackDays), true
	}
	ch := make(chan struct{})
	c.inflight[preset.Key] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, preset.Key)
		c.mu.Unlock()
		close(ch)
	}()

	now := c.now()

	times, err := c.fetchTimes(ctx, preset)
	synthesized := false
	if err != nil {
		logging.Warn().
			Str("layer", preset.Key).
			Err(err).
			Msg("capability fetch failed, synthesizing recent days")
		times = FallbackTimes(now, fallbackDays)
		synthesized = true
		metrics.CapabilityRefreshTotal.WithLabelValues(preset.Key, "synthesized").Inc()
	} else {
		metrics.CapabilityRefreshTotal.WithLabelValues(preset.Key, "ok").Inc()
	}
	metrics.CapabilityTimesKnown.WithLabelValues(preset.Key).Set(float64(len(times)))

	c.mu.Lock()
	c.entries[preset.Key] = &cacheEntry{times: times, synthesized: synthesized, fetchedAt: now}
	c.mu.Unlock()

	return times, synthesized
}

func (c *Cache) fetchTimes(ctx context.Context, preset registry.LayerPreset) ([]time.Time, error) {
	doc, err := c.source.FetchCapabilities(ctx, preset)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractLayerTimes(doc, preset.LayerID)
	if err != nil {
		return nil, err
	}
	return ParseTimeValues(raw, c.maxWindow)
}

// RecentTimes returns the freshest n timestamps for a layer, newest last.
func (c *Cache) RecentTimes(ctx context.Context, preset registry.LayerPreset, n int) []time.Time {
	times := c.Times(ctx, preset)
	if len(times) <= n {
		return times
	}
	return times[len(times)-n:]
}

// Resolve maps a requested time to a concrete catalog timestamp.
// "latest" (or empty) resolves to the newest known time. An explicit instant
// resolves to the newest catalog time not after it; requests before the
// catalog start resolve to the oldest known time.
func (c *Cache) Resolve(ctx context.Context, preset registry.LayerPreset, requested string) (time.Time, error) {
	times := c.Times(ctx, preset)

	if requested == "" || requested == "latest" {
		return times[len(times)-1], nil
	}

	want, err := parseInstant(requested)
	if err != nil {
		return time.Time{}, err
	}

	resolved := times[0]
	for _, ts := range times {
		if ts.After(want) {
			break
		}
		resolved = ts
	}
	return resolved, nil
}
