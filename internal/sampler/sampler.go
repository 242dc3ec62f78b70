// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package sampler computes deterministic area statistics over raster layers.
//
// Determinism is the point: the same polygon, time and layer always sample
// the same tiles at the same zoom on the same sub-pixel grid, so repeated
// analyses of one area agree exactly. The zoom is a pure step function of
// the polygon's bounding box, never of any client viewport.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/raster"
	"github.com/tomtom215/pelagos/internal/registry"
)

// gridSize is the fixed per-tile sampling grid (gridSize x gridSize pixel
// probes per tile).
const gridSize = 16

// ErrTooManyTiles rejects requests whose canonical grid is too large.
var ErrTooManyTiles = errors.New("sampler: polygon spans too many tiles")

// Stats summarizes the valid samples inside a polygon for one layer.
// Temperatures are °F, chlorophyll mg/m³.
type Stats struct {
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Gradient float64 `json:"gradient"`

	ValidCount   int `json:"validCount"`
	NodataCount  int `json:"nodataCount"`
	ZoomUsed     int `json:"zoomUsed"`
	TilesTouched int `json:"tilesTouched"`
}

// TileSource provides decoded tile imagery. A nil image with nil error means
// the tile has no imagery (sentinel or unconfigured layer).
type TileSource interface {
	TileImage(ctx context.Context, preset registry.LayerPreset, z, x, y int, ts time.Time) (image.Image, error)
}

// Sampler runs bounded, deterministic sampling passes.
type Sampler struct {
	source      TileSource
	concurrency int
	maxTiles    int
}

// New creates a Sampler over the given tile source.
func New(source TileSource, concurrency, maxTiles int) *Sampler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sampler{source: source, concurrency: concurrency, maxTiles: maxTiles}
}

// OptimalZoom maps the bounding box's larger dimension (degrees) to the
// canonical sampling zoom. Larger areas sample coarser tiles.
func OptimalZoom(maxDimDegrees float64) int {
	switch {
	case maxDimDegrees > 10:
		return 5
	case maxDimDegrees > 5:
		return 6
	case maxDimDegrees > 2:
		return 7
	case maxDimDegrees > 1:
		return 8
	case maxDimDegrees > 0.5:
		return 9
	default:
		return 10
	}
}

// Sample computes statistics for one layer over a polygon at a resolved
// catalog time. It returns (nil, tilesTouched, nil) when no valid pixels
// fall inside the polygon.
func (s *Sampler) Sample(ctx context.Context, preset registry.LayerPreset, geom orb.Geometry, ts time.Time) (*Stats, int, error) {
	start := time.Now()

	bound := geom.Bound()
	if bound.IsEmpty() {
		return nil, 0, fmt.Errorf("sampler: empty polygon bound")
	}

	maxDim := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	zoom := OptimalZoom(maxDim)
	if preset.MaxZoom > 0 && zoom > preset.MaxZoom {
		zoom = preset.MaxZoom
	}

	tiles := tileRange(bound, zoom)
	if s.maxTiles > 0 && len(tiles) > s.maxTiles {
		return nil, 0, fmt.Errorf("%w: %d tiles at zoom %d, max %d", ErrTooManyTiles, len(tiles), zoom, s.maxTiles)
	}

	// Tile fan-out is bounded; results land in per-tile slots so the merged
	// order is fixed regardless of completion order.
	type tileSamples struct {
		values []float64
		nodata int
	}
	slots := make([]tileSamples, len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, tc := range tiles {
		g.Go(func() error {
			img, err := s.source.TileImage(gctx, preset, zoom, tc.x, tc.y, ts)
			if err != nil {
				return err
			}
			values, nodata := sampleTile(img, preset, geom, zoom, tc.x, tc.y)
			// Each goroutine owns its slot; no shared writes.
			slots[i] = tileSamples{values: values, nodata: nodata}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(tiles), err
	}

	var values []float64
	nodata := 0
	for _, slot := range slots {
		values = append(values, slot.values...)
		nodata += slot.nodata
	}

	metrics.RecordSample(preset.Key, len(tiles), time.Since(start))

	if len(values) == 0 {
		return nil, len(tiles), nil
	}

	stats := &Stats{
		Min:          math.Inf(1),
		Max:          math.Inf(-1),
		ValidCount:   len(values),
		NodataCount:  nodata,
		ZoomUsed:     zoom,
		TilesTouched: len(tiles),
	}
	sum := 0.0
	for _, v := range values {
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Mean = sum / float64(len(values))
	stats.Gradient = robustGradient(values)

	return stats, len(tiles), nil
}

// sampleTile probes the fixed sub-pixel grid of one tile and keeps values
// whose geographic position falls inside the polygon.
func sampleTile(img image.Image, preset registry.LayerPreset, geom orb.Geometry, z, x, y int) (values []float64, nodata int) {
	if img == nil {
		return nil, 0
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			px := (gx*width + width/2) / gridSize
			py := (gy*height + height/2) / gridSize

			lon := pixelLon(z, x, px, width)
			lat := pixelLat(z, y, py, height)
			if !containsPoint(geom, orb.Point{lon, lat}) {
				continue
			}

			v, ok := raster.At(img, px, py, preset.Colormap)
			if !ok {
				nodata++
				continue
			}
			values = append(values, v)
		}
	}
	return values, nodata
}

// containsPoint handles the geometry types a GeoJSON request can carry.
func containsPoint(geom orb.Geometry, pt orb.Point) bool {
	switch g := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	default:
		return false
	}
}

// pixelLon converts a pixel column in a Web-Mercator tile to longitude.
func pixelLon(z, x, px, width int) float64 {
	n := math.Exp2(float64(z))
	fx := float64(x) + (float64(px)+0.5)/float64(width)
	return fx/n*360 - 180
}

// pixelLat converts a pixel row in a Web-Mercator tile to latitude.
func pixelLat(z, y, py, height int) float64 {
	n := math.Exp2(float64(z))
	fy := float64(y) + (float64(py)+0.5)/float64(height)
	rad := math.Atan(math.Sinh(math.Pi * (1 - 2*fy/n)))
	return rad * 180 / math.Pi
}

type tileCoord struct {
	x, y int
}

// tileRange enumerates the tiles covering a bound at a zoom, in fixed
// row-major order (y then x ascending).
func tileRange(bound orb.Bound, zoom int) []tileCoord {
	minX, maxY := tileAt(bound.Min[0], bound.Min[1], zoom)
	maxX, minY := tileAt(bound.Max[0], bound.Max[1], zoom)

	n := int(math.Exp2(float64(zoom)))
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	minX, maxX = clamp(minX), clamp(maxX)
	minY, maxY = clamp(minY), clamp(maxY)

	var tiles []tileCoord
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, tileCoord{x: x, y: y})
		}
	}
	return tiles
}

// tileAt returns the tile containing a lon/lat at a zoom.
func tileAt(lon, lat float64, zoom int) (x, y int) {
	n := math.Exp2(float64(zoom))
	x = int(math.Floor((lon + 180) / 360 * n))
	latRad := lat * math.Pi / 180
	y = int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
	return x, y
}

// robustGradient is the p90-p10 spread: resistant to single-pixel outliers
// that a max-min spread would amplify.
func robustGradient(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.9) - percentile(sorted, 0.1)
}

// percentile interpolates linearly over a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
