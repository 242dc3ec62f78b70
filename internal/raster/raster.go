// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package raster inverts rendered tile pixels back into physical values.
//
// Upstream tiles are styled imagery, not data: a pixel's color encodes the
// underlying value through a known colormap. Inversion is a pure function of
// the pixel and the preset's colormap name, so sampling the same tile twice
// always yields identical values.
//
// Unit policy: temperatures leave this package in Fahrenheit and chlorophyll
// in mg/m³. The unit conversion happens exactly once, here and nowhere else.
// Values outside physical validity and transparent pixels decode as nodata.
package raster

import (
	"image"
	"image/color"
	"math"
)

// alphaNodata is the alpha threshold below which a pixel is treated as
// having no data (land mask, missing swath).
const alphaNodata = 128

// Physical validity bounds. Decoded values outside these are nodata.
const (
	sstMinCelsius = -2.0
	sstMaxCelsius = 40.0
	chlMinMgM3    = 0.001
	chlMaxMgM3    = 100.0
)

// CelsiusToFahrenheit converts a temperature once, at the decode boundary.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// DecodePixel inverts one RGBA pixel through the named colormap and returns
// the value in canonical units (°F for temperature, mg/m³ for chlorophyll).
// ok is false for transparent pixels, unknown colormaps, and values outside
// physical validity.
func DecodePixel(colormap string, r, g, b, a uint8) (float64, bool) {
	if a < alphaNodata {
		return 0, false
	}

	switch colormap {
	case "thermal":
		// Thermal ramp: red rises and blue falls with temperature. The
		// red-blue difference maps linearly between the cold and hot
		// anchors of the rendered range.
		celsius := 15 + (float64(r)-float64(b))/255*15
		if celsius < sstMinCelsius || celsius > sstMaxCelsius {
			return 0, false
		}
		return CelsiusToFahrenheit(celsius), true

	case "algae":
		// Chlorophyll ramps are log-scale on the green channel across
		// roughly three decades.
		chl := math.Pow(10, -1+float64(g)/255*2)
		if chl < chlMinMgM3 || chl > chlMaxMgM3 {
			return 0, false
		}
		return chl, true

	default:
		return 0, false
	}
}

// At decodes the pixel at (x, y) of a tile image through the preset's
// colormap. Coordinates are relative to the image bounds.
func At(img image.Image, x, y int, colormap string) (float64, bool) {
	bounds := img.Bounds()
	px := img.At(bounds.Min.X+x, bounds.Min.Y+y)
	r, g, b, a := rgba8(px)
	return DecodePixel(colormap, r, g, b, a)
}

// rgba8 converts a color to 8-bit non-premultiplied channels.
func rgba8(c color.Color) (r, g, b, a uint8) {
	if n, ok := c.(color.NRGBA); ok {
		return n.R, n.G, n.B, n.A
	}
	r16, g16, b16, a16 := c.RGBA()
	if a16 == 0 {
		return 0, 0, 0, 0
	}
	// Un-premultiply.
	r = uint8((r16 * 0xff) / a16)
	g = uint8((g16 * 0xff) / a16)
	b = uint8((b16 * 0xff) / a16)
	a = uint8(a16 >> 8)
	return r, g, b, a
}
