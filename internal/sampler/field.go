// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package sampler

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pelagos/internal/raster"
	"github.com/tomtom215/pelagos/internal/registry"
)

// Field is a regular lon/lat grid of decoded values over a bounding box.
// Row 0 is the northern edge; column 0 the western edge. Feature detection
// consumes fields rather than raw tiles.
type Field struct {
	Values [][]float64
	Valid  [][]bool
	Bound  orb.Bound
	Width  int
	Height int

	// ZoomUsed is the canonical zoom the underlying tiles were fetched at.
	ZoomUsed int
}

// CellLonLat returns the geographic center of grid cell (col, row).
func (f *Field) CellLonLat(col, row int) (lon, lat float64) {
	dLon := (f.Bound.Max[0] - f.Bound.Min[0]) / float64(f.Width)
	dLat := (f.Bound.Max[1] - f.Bound.Min[1]) / float64(f.Height)
	lon = f.Bound.Min[0] + (float64(col)+0.5)*dLon
	lat = f.Bound.Max[1] - (float64(row)+0.5)*dLat
	return lon, lat
}

// CellSizeKm returns the approximate dimensions of one grid cell in km.
func (f *Field) CellSizeKm() (wKm, hKm float64) {
	dLon := (f.Bound.Max[0] - f.Bound.Min[0]) / float64(f.Width)
	dLat := (f.Bound.Max[1] - f.Bound.Min[1]) / float64(f.Height)
	midLat := (f.Bound.Min[1] + f.Bound.Max[1]) / 2
	const kmPerDegree = 111.32
	return dLon * kmPerDegree * math.Cos(midLat*math.Pi/180), dLat * kmPerDegree
}

// Field samples a width x height grid of decoded values over a bounding box
// at the canonical zoom. Tiles covering the box are prefetched with bounded
// fan-out; grid points over sentinel or transparent imagery are invalid.
func (s *Sampler) Field(ctx context.Context, preset registry.LayerPreset, bound orb.Bound, ts time.Time, width, height int) (*Field, error) {
	if bound.IsEmpty() {
		return nil, fmt.Errorf("sampler: empty field bound")
	}
	if width < 2 || height < 2 {
		return nil, fmt.Errorf("sampler: field grid %dx%d too small", width, height)
	}

	maxDim := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])
	zoom := OptimalZoom(maxDim)
	if preset.MaxZoom > 0 && zoom > preset.MaxZoom {
		zoom = preset.MaxZoom
	}

	tiles := tileRange(bound, zoom)
	if s.maxTiles > 0 && len(tiles) > s.maxTiles {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d, max %d", ErrTooManyTiles, len(tiles), zoom, s.maxTiles)
	}

	images := make([]image.Image, len(tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, tc := range tiles {
		g.Go(func() error {
			img, err := s.source.TileImage(gctx, preset, zoom, tc.x, tc.y, ts)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byCoord := make(map[tileCoord]image.Image, len(tiles))
	for i, tc := range tiles {
		byCoord[tc] = images[i]
	}

	field := &Field{
		Bound:    bound,
		Width:    width,
		Height:   height,
		ZoomUsed: zoom,
		Values:   make([][]float64, height),
		Valid:    make([][]bool, height),
	}

	for row := 0; row < height; row++ {
		field.Values[row] = make([]float64, width)
		field.Valid[row] = make([]bool, width)
		for col := 0; col < width; col++ {
			lon, lat := field.CellLonLat(col, row)
			v, ok := sampleAt(byCoord, preset, zoom, lon, lat)
			field.Values[row][col] = v
			field.Valid[row][col] = ok
		}
	}

	return field, nil
}

// sampleAt decodes the pixel under a geographic point from the prefetched
// tiles.
func sampleAt(tiles map[tileCoord]image.Image, preset registry.LayerPreset, zoom int, lon, lat float64) (float64, bool) {
	n := math.Exp2(float64(zoom))
	fx := (lon + 180) / 360 * n
	latRad := lat * math.Pi / 180
	fy := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n

	tc := tileCoord{x: int(math.Floor(fx)), y: int(math.Floor(fy))}
	img, ok := tiles[tc]
	if !ok || img == nil {
		return 0, false
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	px := int((fx - float64(tc.x)) * float64(width))
	py := int((fy - float64(tc.y)) * float64(height))
	if px >= width {
		px = width - 1
	}
	if py >= height {
		py = height - 1
	}

	return raster.At(img, px, py, preset.Colormap)
}
