// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package fetch

import (
	"time"

	"github.com/tomtom215/pelagos/internal/registry"
)

// Attempt outcomes, surfaced in metrics and the X-Tile-Error header.
const (
	TagPrimary        = "primary"
	TagFallbackMatrix = "fallback_matrix"
	TagFallbackTime   = "fallback_time"
)

// Attempt is one upstream strategy: a matrix set and a timestamp to try.
// Fallback chains are plain data evaluated in order by a single loop.
type Attempt struct {
	MatrixSet string
	Time      time.Time
	Tag       string
}

// BuildAttempts returns the ordered strategies for a tile request:
// the preset's primary matrix set at the resolved time, the fallback matrix
// set at the same time, then previous UTC days at the primary matrix set up
// to maxFallbackDays. Composites lag real time, so stepping back a few days
// usually finds imagery.
func BuildAttempts(preset registry.LayerPreset, resolved time.Time, maxFallbackDays int) []Attempt {
	attempts := []Attempt{
		{MatrixSet: preset.MatrixSet, Time: resolved, Tag: TagPrimary},
	}

	if preset.FallbackMatrixSet != "" && preset.FallbackMatrixSet != preset.MatrixSet {
		attempts = append(attempts, Attempt{
			MatrixSet: preset.FallbackMatrixSet,
			Time:      resolved,
			Tag:       TagFallbackMatrix,
		})
	}

	day := time.Date(resolved.Year(), resolved.Month(), resolved.Day(), 0, 0, 0, 0, time.UTC)
	for i := 1; i <= maxFallbackDays; i++ {
		attempts = append(attempts, Attempt{
			MatrixSet: preset.MatrixSet,
			Time:      day.AddDate(0, 0, -i),
			Tag:       TagFallbackTime,
		})
	}

	return attempts
}
