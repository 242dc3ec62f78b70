// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package registry holds the immutable layer preset table.
//
// A preset binds a short layer key ("sst", "chl") to everything needed to
// fetch and decode its imagery: the upstream WMTS endpoint and product path,
// matrix sets, style, physical units, and the colormap used to invert pixels
// back into values. Presets are built once at startup from configuration and
// never mutated afterwards, so lookups need no locking.
package registry

import (
	"fmt"
	"sort"

	"github.com/tomtom215/pelagos/internal/config"
)

// Units identifies the physical unit of a layer's underlying values.
type Units string

const (
	UnitsKelvin Units = "kelvin"
	UnitsMgM3   Units = "mg_m3"
)

// LayerPreset describes one proxied raster layer.
type LayerPreset struct {
	// Key is the short identifier used in URLs ("sst", "chl").
	Key string

	// Title is a human-readable name for the layer index endpoint.
	Title string

	// Provider is the upstream configuration this layer is served from.
	Provider config.ProviderConfig

	// ProviderName labels the upstream for breakers, limiter keys and metrics.
	ProviderName string

	// LayerID is the full upstream product/layer path.
	LayerID string

	// Style is the default rendering style requested upstream.
	Style string

	// Format is the tile image MIME type.
	Format string

	// MatrixSet and FallbackMatrixSet name the WMTS tile matrix sets tried
	// in order when fetching.
	MatrixSet         string
	FallbackMatrixSet string

	// TileSize is the edge length in pixels of one tile.
	TileSize int

	// Units is the physical unit of the decoded values.
	Units Units

	// Colormap names the inversion table used to decode pixels.
	Colormap string

	// MinZoom and MaxZoom bound the zoom levels the upstream serves.
	MinZoom, MaxZoom int
}

// Configured reports whether the preset's provider has usable configuration.
// Unconfigured layers serve sentinel tiles and null statistics.
func (p LayerPreset) Configured() bool {
	return p.Provider.Configured()
}

// Registry is the immutable set of layer presets.
type Registry struct {
	presets map[string]LayerPreset
}

// Load builds the preset table from configuration. The set of layers is
// fixed; configuration supplies endpoints and credentials.
func Load(cfg *config.Config) *Registry {
	presets := map[string]LayerPreset{
		"sst": {
			Key:               "sst",
			Title:             "Sea Surface Temperature",
			Provider:          cfg.Copernicus,
			ProviderName:      "copernicus",
			LayerID:           "SST_GLO_SST_L4_NRT_OBSERVATIONS_010_001/METOFFICE-GLO-SST-L4-NRT-OBS-SST-V2/analysed_sst",
			Style:             "cmap:thermal",
			Format:            "image/png",
			MatrixSet:         cfg.Copernicus.MatrixSet,
			FallbackMatrixSet: cfg.Copernicus.FallbackMatrixSet,
			TileSize:          256,
			Units:             UnitsKelvin,
			Colormap:          "thermal",
			MinZoom:           0,
			MaxZoom:           10,
		},
		"chl_viirs": {
			Key:          "chl_viirs",
			Title:        "Chlorophyll-a Concentration (VIIRS weekly)",
			Provider:     cfg.ERDDAP,
			ProviderName: "erddap",
			LayerID:      "noaacwNPPVIIRSchlaWeekly:chlor_a",
			Style:        "",
			Format:       "image/png",
			TileSize:     256,
			Units:        UnitsMgM3,
			Colormap:     "algae",
			MinZoom:      0,
			MaxZoom:      9,
		},
		"chl": {
			Key:               "chl",
			Title:             "Chlorophyll-a Concentration",
			Provider:          cfg.Copernicus,
			ProviderName:      "copernicus",
			LayerID:           "OCEANCOLOUR_GLO_BGC_L4_NRT_009_102/cmems_obs-oc_glo_bgc-plankton_nrt_l4-gapfree-multi-4km_P1D/CHL",
			Style:             "cmap:algae",
			Format:            "image/png",
			MatrixSet:         cfg.Copernicus.MatrixSet,
			FallbackMatrixSet: cfg.Copernicus.FallbackMatrixSet,
			TileSize:          256,
			Units:             UnitsMgM3,
			Colormap:          "algae",
			MinZoom:           0,
			MaxZoom:           9,
		},
	}
	return &Registry{presets: presets}
}

// Get returns the preset for a layer key.
func (r *Registry) Get(key string) (LayerPreset, error) {
	p, ok := r.presets[key]
	if !ok {
		return LayerPreset{}, fmt.Errorf("unknown layer %q", key)
	}
	return p, nil
}

// Keys returns all layer keys in stable sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.presets))
	for k := range r.presets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every preset in stable key order.
func (r *Registry) All() []LayerPreset {
	keys := r.Keys()
	out := make([]LayerPreset, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.presets[k])
	}
	return out
}
