// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package features detects oceanographic structure in sampled temperature
// fields: thermal edges (fronts), filaments and eddies. Detection is pure
// computation over a sampler.Field, so identical inputs always yield
// identical features.
//
// Pipeline: Sobel gradient magnitude over the grid, threshold into a
// candidate mask, 8-connected component clustering, then per-component
// classification and scoring.
package features

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/sampler"
)

// Feature classes.
const (
	ClassEdge     = "edge"
	ClassFilament = "filament"
	ClassEddy     = "eddy"
)

// Config holds detection thresholds. Gradients are °F between adjacent grid
// cells.
type Config struct {
	// EdgeThreshold marks strong fronts.
	EdgeThreshold float64

	// FilamentThreshold is the weaker bound; cells below it are ignored.
	FilamentThreshold float64

	// MinCells drops components too small to be real structure.
	MinCells int
}

// Polygon is one detected feature.
type Polygon struct {
	ID    string  `json:"id"`
	Class string  `json:"class"`
	Score float64 `json:"score"`

	// Geometry is the convex outline of the feature's cells.
	Geometry orb.Polygon `json:"geometry"`

	// LengthKm is the major-axis extent.
	LengthKm float64 `json:"lengthKm"`

	// Compactness is the filled fraction of the feature's bounding box,
	// 0..1. Eddies run high, filaments low.
	Compactness float64 `json:"compactness"`

	// MeanGradient and MaxGradient are °F per cell.
	MeanGradient float64 `json:"meanGradient"`
	MaxGradient  float64 `json:"maxGradient"`
}

// Detect finds features in a sampled field.
func Detect(field *sampler.Field, cfg Config) []Polygon {
	if cfg.MinCells < 1 {
		cfg.MinCells = 3
	}

	grad := sobel(field)
	labels, count := label(grad, field, cfg.FilamentThreshold)

	cellWKm, cellHKm := field.CellSizeKm()
	cellKm := (cellWKm + cellHKm) / 2

	var out []Polygon
	for id := 1; id <= count; id++ {
		comp := collect(labels, grad, field, id)
		if len(comp.cells) < cfg.MinCells {
			continue
		}

		poly := classify(comp, field, cfg, cellKm)
		metrics.FeatureDetections.WithLabelValues(poly.Class).Inc()
		out = append(out, poly)
	}
	return out
}

// sobel computes the gradient magnitude at every cell. Invalid neighbors are
// replaced with the center value, which damps gradients along the land mask
// instead of manufacturing false fronts there.
func sobel(field *sampler.Field) [][]float64 {
	h, w := field.Height, field.Width
	grad := make([][]float64, h)
	for y := range grad {
		grad[y] = make([]float64, w)
	}

	at := func(cx, cy, x, y int) float64 {
		if x < 0 || x >= w || y < 0 || y >= h || !field.Valid[y][x] {
			return field.Values[cy][cx]
		}
		return field.Values[y][x]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !field.Valid[y][x] {
				continue
			}
			gx := -at(x, y, x-1, y-1) + at(x, y, x+1, y-1) +
				-2*at(x, y, x-1, y) + 2*at(x, y, x+1, y) +
				-at(x, y, x-1, y+1) + at(x, y, x+1, y+1)
			gy := -at(x, y, x-1, y-1) - 2*at(x, y, x, y-1) - at(x, y, x+1, y-1) +
				at(x, y, x-1, y+1) + 2*at(x, y, x, y+1) + at(x, y, x+1, y+1)
			grad[y][x] = math.Hypot(gx, gy) / 4
		}
	}
	return grad
}

// label assigns 8-connected component IDs to cells whose gradient clears the
// threshold. Returns the label grid and the number of components.
func label(grad [][]float64, field *sampler.Field, threshold float64) ([][]int, int) {
	h, w := field.Height, field.Width
	labels := make([][]int, h)
	for y := range labels {
		labels[y] = make([]int, w)
	}

	candidate := func(x, y int) bool {
		return field.Valid[y][x] && grad[y][x] >= threshold
	}

	next := 0
	var stack [][2]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if labels[y][x] != 0 || !candidate(x, y) {
				continue
			}
			next++
			labels[y][x] = next
			stack = append(stack[:0], [2]int{x, y})
			for len(stack) > 0 {
				c := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := c[0]+dx, c[1]+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						if labels[ny][nx] == 0 && candidate(nx, ny) {
							labels[ny][nx] = next
							stack = append(stack, [2]int{nx, ny})
						}
					}
				}
			}
		}
	}
	return labels, next
}

type component struct {
	cells                  [][2]int
	minX, maxX, minY, maxY int
	meanGrad, maxGrad      float64
}

// collect gathers the cells and gradient statistics of one labeled component.
func collect(labels [][]int, grad [][]float64, field *sampler.Field, id int) component {
	comp := component{minX: field.Width, minY: field.Height}
	sum := 0.0
	for y := 0; y < field.Height; y++ {
		for x := 0; x < field.Width; x++ {
			if labels[y][x] != id {
				continue
			}
			comp.cells = append(comp.cells, [2]int{x, y})
			sum += grad[y][x]
			comp.maxGrad = math.Max(comp.maxGrad, grad[y][x])
			comp.minX = min(comp.minX, x)
			comp.maxX = max(comp.maxX, x)
			comp.minY = min(comp.minY, y)
			comp.maxY = max(comp.maxY, y)
		}
	}
	if len(comp.cells) > 0 {
		comp.meanGrad = sum / float64(len(comp.cells))
	}
	return comp
}

// classify turns a component into a scored feature polygon.
func classify(comp component, field *sampler.Field, cfg Config, cellKm float64) Polygon {
	bboxW := comp.maxX - comp.minX + 1
	bboxH := comp.maxY - comp.minY + 1
	major := float64(max(bboxW, bboxH))
	minor := float64(min(bboxW, bboxH))
	aspect := minor / major
	compactness := float64(len(comp.cells)) / (float64(bboxW) * float64(bboxH))
	lengthKm := major * cellKm

	var class string
	switch {
	case aspect >= 0.8 && compactness >= 0.6 && comp.maxGrad < cfg.EdgeThreshold:
		// Round, filled, moderate gradients: rotating structure rather
		// than a front.
		class = ClassEddy
	case comp.maxGrad >= cfg.EdgeThreshold:
		class = ClassEdge
	default:
		class = ClassFilament
	}

	return Polygon{
		ID:           featureID(comp),
		Class:        class,
		Score:        score(comp, cfg, aspect, compactness),
		Geometry:     outline(comp, field),
		LengthKm:     lengthKm,
		Compactness:  compactness,
		MeanGradient: comp.meanGrad,
		MaxGradient:  comp.maxGrad,
	}
}

// featureID derives a stable identifier from the component's cells, so the
// same field always yields the same IDs.
func featureID(comp component) string {
	h := fnv.New64a()
	var buf [8]byte
	for _, c := range comp.cells {
		binary.LittleEndian.PutUint32(buf[:4], uint32(c[0]))
		binary.LittleEndian.PutUint32(buf[4:], uint32(c[1]))
		h.Write(buf[:])
	}
	return fmt.Sprintf("f-%016x", h.Sum64())
}

// score rates a feature 0-100: gradient strength up to 40, size up to 20,
// shape coherence up to 20, gradient consistency up to 20.
func score(comp component, cfg Config, aspect, compactness float64) float64 {
	strength := 40 * clamp01(comp.maxGrad/(2*cfg.EdgeThreshold))

	size := 20 * clamp01(float64(len(comp.cells))/50)

	// Strongly elongated or strongly round shapes are coherent structure;
	// middling blobs less so.
	shapeCoherence := math.Max(1-aspect/0.5, (aspect-0.5)/0.5*compactness)
	shape := 20 * clamp01(shapeCoherence)

	consistency := 0.0
	if comp.maxGrad > 0 {
		consistency = 20 * clamp01(comp.meanGrad/comp.maxGrad)
	}

	return strength + size + shape + consistency
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// outline builds the convex hull of the component's cell centers as a closed
// lon/lat ring. Components with fewer than three distinct hull points fall
// back to a small bounding box.
func outline(comp component, field *sampler.Field) orb.Polygon {
	points := make([]orb.Point, 0, len(comp.cells))
	for _, c := range comp.cells {
		lon, lat := field.CellLonLat(c[0], c[1])
		points = append(points, orb.Point{lon, lat})
	}

	hull := convexHull(points)
	if len(hull) < 3 {
		minLon, maxLat := field.CellLonLat(comp.minX, comp.minY)
		maxLon, minLat := field.CellLonLat(comp.maxX, comp.maxY)
		return orb.Polygon{orb.Ring{
			{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
		}}
	}

	ring := make(orb.Ring, 0, len(hull)+1)
	ring = append(ring, hull...)
	ring = append(ring, hull[0])
	return orb.Polygon{ring}
}

// convexHull is Andrew's monotone chain over lon/lat points.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		return points
	}

	sorted := append([]orb.Point(nil), points...)
	sortPoints(sorted)

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	var hull []orb.Point
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func sortPoints(pts []orb.Point) {
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})
}
