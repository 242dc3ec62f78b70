// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package features

import (
	"sort"

	"github.com/paulmach/orb"
)

// RankOptions filters and bounds a ranked result set.
type RankOptions struct {
	// Region, when non-empty, keeps only features whose outline intersects
	// the bounding box.
	Region orb.Bound

	// MinScore drops weak features.
	MinScore float64

	// MaxReturn caps the result count; 0 means unlimited.
	MaxReturn int
}

// Rank orders features by score, breaking ties by length then compactness,
// all descending. The ordering is total, so equal inputs always rank
// identically.
func Rank(polys []Polygon, opts RankOptions) []Polygon {
	out := make([]Polygon, 0, len(polys))
	for _, p := range polys {
		if p.Score < opts.MinScore {
			continue
		}
		if opts.Region != (orb.Bound{}) && !opts.Region.Intersects(p.Geometry.Bound()) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].LengthKm != out[j].LengthKm {
			return out[i].LengthKm > out[j].LengthKm
		}
		return out[i].Compactness > out[j].Compactness
	})

	if opts.MaxReturn > 0 && len(out) > opts.MaxReturn {
		out = out[:opts.MaxReturn]
	}
	return out
}
