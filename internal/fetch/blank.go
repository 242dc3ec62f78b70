// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package fetch

import (
	"bytes"
	"image"
	"image/png"
)

// blankTile is the 1x1 fully transparent PNG served when every upstream
// attempt fails. Map clients composite it invisibly instead of breaking the
// viewport.
var blankTile = buildBlankTile()

func buildBlankTile() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding a constant 1x1 image cannot fail at runtime.
		panic(err)
	}
	return buf.Bytes()
}

// BlankTile returns the sentinel transparent PNG.
func BlankTile() []byte {
	return blankTile
}
