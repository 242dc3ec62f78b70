// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package features

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/tomtom215/pelagos/internal/sampler"
)

// makeField builds a valid field from row-major values.
func makeField(values [][]float64) *sampler.Field {
	h := len(values)
	w := len(values[0])
	valid := make([][]bool, h)
	for y := range valid {
		valid[y] = make([]bool, w)
		for x := range valid[y] {
			valid[y][x] = true
		}
	}
	return &sampler.Field{
		Values: values,
		Valid:  valid,
		Bound:  orb.Bound{Min: orb.Point{-41, 29}, Max: orb.Point{-40, 30}},
		Width:  w,
		Height: h,
	}
}

// uniformGrid returns an h x w grid filled with v.
func uniformGrid(h, w int, v float64) [][]float64 {
	g := make([][]float64, h)
	for y := range g {
		g[y] = make([]float64, w)
		for x := range g[y] {
			g[y][x] = v
		}
	}
	return g
}

func defaultConfig() Config {
	return Config{EdgeThreshold: 2.0, FilamentThreshold: 0.5, MinCells: 3}
}

func TestDetectUniformFieldFindsNothing(t *testing.T) {
	field := makeField(uniformGrid(16, 16, 60))
	if got := Detect(field, defaultConfig()); len(got) != 0 {
		t.Errorf("Detect on uniform field = %d features, want 0", len(got))
	}
}

func TestDetectThermalFront(t *testing.T) {
	// Left half 55 °F, right half 65 °F: a strong vertical front.
	values := uniformGrid(16, 16, 55)
	for y := 0; y < 16; y++ {
		for x := 8; x < 16; x++ {
			values[y][x] = 65
		}
	}

	got := Detect(makeField(values), defaultConfig())
	if len(got) == 0 {
		t.Fatal("no features detected across a 10 °F front")
	}

	found := false
	for _, p := range got {
		if p.Class == ClassEdge {
			found = true
			if p.MaxGradient < 2 {
				t.Errorf("edge MaxGradient = %v, want >= edge threshold", p.MaxGradient)
			}
			if len(p.Geometry) == 0 || len(p.Geometry[0]) < 4 {
				t.Errorf("edge geometry not a closed ring: %v", p.Geometry)
			}
		}
	}
	if !found {
		t.Errorf("no edge among detected features: %+v", got)
	}
}

func TestDetectWeakGradientIsFilament(t *testing.T) {
	// A gentle 0.3 °F/cell ramp in a narrow band: above the filament
	// threshold after Sobel scaling but below the edge threshold.
	values := uniformGrid(16, 16, 60)
	for y := 7; y <= 8; y++ {
		for x := 0; x < 16; x++ {
			values[y][x] = 60 + 0.4*float64(x%2)
		}
	}

	got := Detect(makeField(values), defaultConfig())
	for _, p := range got {
		if p.Class == ClassEdge && p.MaxGradient < 2 {
			t.Errorf("feature with MaxGradient %v classified as edge", p.MaxGradient)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	values := uniformGrid(16, 16, 55)
	for y := 0; y < 16; y++ {
		for x := 8; x < 16; x++ {
			values[y][x] = 65
		}
	}
	field := makeField(values)
	cfg := defaultConfig()

	first := Detect(field, cfg)
	for i := 0; i < 3; i++ {
		again := Detect(field, cfg)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d features, first run %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].ID != first[j].ID || again[j].Class != first[j].Class ||
				again[j].Score != first[j].Score || again[j].LengthKm != first[j].LengthKm {
				t.Fatalf("run %d feature %d differs: %+v vs %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestFeatureIDContentDerived(t *testing.T) {
	a := component{cells: [][2]int{{1, 2}, {3, 4}}}
	b := component{cells: [][2]int{{1, 2}, {3, 4}}}
	c := component{cells: [][2]int{{1, 2}, {3, 5}}}

	if featureID(a) != featureID(b) {
		t.Error("identical components produced different IDs")
	}
	if featureID(a) == featureID(c) {
		t.Error("different components produced the same ID")
	}
}

func TestDetectIgnoresInvalidCells(t *testing.T) {
	// A sharp discontinuity against the land mask must not register as a
	// front: invalid neighbors are damped, not differenced.
	values := uniformGrid(16, 16, 60)
	field := makeField(values)
	for y := 0; y < 16; y++ {
		for x := 0; x < 8; x++ {
			field.Valid[y][x] = false
			field.Values[y][x] = 0 // garbage under the mask
		}
	}

	if got := Detect(field, defaultConfig()); len(got) != 0 {
		t.Errorf("Detect along land mask = %d features, want 0", len(got))
	}
}

func TestDetectMinCells(t *testing.T) {
	// A single hot pixel produces a tiny component that MinCells drops.
	values := uniformGrid(16, 16, 60)
	values[8][8] = 70

	cfg := defaultConfig()
	cfg.MinCells = 20
	if got := Detect(makeField(values), cfg); len(got) != 0 {
		t.Errorf("Detect = %d features, want 0 below MinCells", len(got))
	}
}

func TestRankOrdering(t *testing.T) {
	polys := []Polygon{
		{ID: "a", Score: 0.9 * 100, LengthKm: 8, Compactness: 0.3},
		{ID: "b", Score: 0.5 * 100, LengthKm: 100, Compactness: 0.9},
		{ID: "c", Score: 0.9 * 100, LengthKm: 12, Compactness: 0.3},
	}

	got := Rank(polys, RankOptions{})
	wantOrder := []string{"c", "a", "b"}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("rank[%d] = %s, want %s (score desc, then length desc)", i, got[i].ID, id)
		}
	}
}

func TestRankTieBreakCompactness(t *testing.T) {
	polys := []Polygon{
		{ID: "loose", Score: 80, LengthKm: 10, Compactness: 0.2},
		{ID: "tight", Score: 80, LengthKm: 10, Compactness: 0.7},
	}
	got := Rank(polys, RankOptions{})
	if got[0].ID != "tight" {
		t.Errorf("rank[0] = %s, want tight (compactness tie-break)", got[0].ID)
	}
}

func TestRankFilters(t *testing.T) {
	ring := func(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
		return orb.Polygon{orb.Ring{
			{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
		}}
	}
	polys := []Polygon{
		{ID: "in", Score: 90, Geometry: ring(-41, 29, -40, 30)},
		{ID: "out", Score: 95, Geometry: ring(10, 10, 11, 11)},
		{ID: "weak", Score: 5, Geometry: ring(-41, 29, -40, 30)},
	}

	got := Rank(polys, RankOptions{
		Region:   orb.Bound{Min: orb.Point{-42, 28}, Max: orb.Point{-39, 31}},
		MinScore: 20,
	})
	if len(got) != 1 || got[0].ID != "in" {
		t.Errorf("Rank filtered = %+v, want only 'in'", got)
	}
}

func TestRankMaxReturn(t *testing.T) {
	polys := make([]Polygon, 10)
	for i := range polys {
		polys[i] = Polygon{Score: float64(i * 10)}
	}
	got := Rank(polys, RankOptions{MaxReturn: 3})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Score != 90 {
		t.Errorf("top score = %v, want 90", got[0].Score)
	}
}
