// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package sampler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png" // tile imagery decoder
	"time"

	"github.com/tomtom215/pelagos/internal/fetch"
	"github.com/tomtom215/pelagos/internal/registry"
)

// FetchSource adapts the resilient tile fetcher to the TileSource interface.
// Sentinel blank tiles decode to nil imagery so sampled areas degrade to
// nodata instead of surfacing fake values.
type FetchSource struct {
	fetcher         *fetch.Fetcher
	maxFallbackDays int
}

// NewFetchSource wraps a fetcher for sampling use.
func NewFetchSource(fetcher *fetch.Fetcher, maxFallbackDays int) *FetchSource {
	return &FetchSource{fetcher: fetcher, maxFallbackDays: maxFallbackDays}
}

// TileImage fetches and decodes one tile. Blank sentinels return nil.
func (s *FetchSource) TileImage(ctx context.Context, preset registry.LayerPreset, z, x, y int, ts time.Time) (image.Image, error) {
	attempts := fetch.BuildAttempts(preset, ts, s.maxFallbackDays)
	res, err := s.fetcher.Tile(ctx, preset, z, x, y, "", attempts)
	if err != nil {
		return nil, err
	}
	if res.Blank {
		return nil, nil
	}

	img, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		return nil, fmt.Errorf("decode tile %d/%d/%d: %w", z, x, y, err)
	}
	return img, nil
}
