// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package capability

import (
	"context"
	"time"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/registry"
)

// Refresher periodically re-fetches capability documents for all configured
// layers so interactive requests hit a warm cache. It implements
// suture.Service and runs under the application supervisor.
type Refresher struct {
	cache    *Cache
	registry *registry.Registry
	interval time.Duration
}

// NewRefresher creates a background refresher for all registry layers.
func NewRefresher(cache *Cache, reg *registry.Registry, interval time.Duration) *Refresher {
	return &Refresher{cache: cache, registry: reg, interval: interval}
}

// Serve refreshes immediately, then on every tick until ctx is cancelled.
func (r *Refresher) Serve(ctx context.Context) error {
	r.refreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, preset := range r.registry.All() {
		if !preset.Configured() {
			continue
		}
		r.cache.Refresh(ctx, preset)
		logging.Debug().Str("layer", preset.Key).Msg("capability cache refreshed")
	}
}

// String names the service in supervisor logs.
func (r *Refresher) String() string {
	return "capability-refresher"
}
