// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package registry

import (
	"testing"

	"github.com/tomtom215/pelagos/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Copernicus: config.ProviderConfig{
			Enabled:           true,
			BaseURL:           "https://wmts.marine.copernicus.eu/teroWmts",
			AllowedHosts:      []string{"wmts.marine.copernicus.eu"},
			Version:           "1.0.0",
			MatrixSet:         "EPSG:3857",
			FallbackMatrixSet: "EPSG:3857@nearest",
			AuthType:          "basic",
			Username:          "user",
			Password:          "pass",
		},
		ERDDAP: config.ProviderConfig{
			Enabled:      true,
			BaseURL:      "https://coastwatch.noaa.gov/erddap/wms/noaacwNPPVIIRSchlaWeekly/request",
			AllowedHosts: []string{"coastwatch.noaa.gov"},
			Protocol:     "wms",
			Version:      "1.3.0",
			AuthType:     "none",
		},
	}
}

func TestLoadPresets(t *testing.T) {
	r := Load(testConfig())

	sst, err := r.Get("sst")
	if err != nil {
		t.Fatalf("Get(sst) error = %v", err)
	}
	if sst.Units != UnitsKelvin {
		t.Errorf("sst.Units = %q, want kelvin", sst.Units)
	}
	if sst.Colormap != "thermal" {
		t.Errorf("sst.Colormap = %q, want thermal", sst.Colormap)
	}
	if !sst.Configured() {
		t.Error("sst should be configured with complete basic auth")
	}

	chl, err := r.Get("chl")
	if err != nil {
		t.Fatalf("Get(chl) error = %v", err)
	}
	if chl.Units != UnitsMgM3 {
		t.Errorf("chl.Units = %q, want mg_m3", chl.Units)
	}

	viirs, err := r.Get("chl_viirs")
	if err != nil {
		t.Fatalf("Get(chl_viirs) error = %v", err)
	}
	if viirs.ProviderName != "erddap" {
		t.Errorf("chl_viirs.ProviderName = %q, want erddap", viirs.ProviderName)
	}
	if viirs.Provider.Protocol != "wms" {
		t.Errorf("chl_viirs.Provider.Protocol = %q, want wms", viirs.Provider.Protocol)
	}
	if viirs.Colormap != "algae" {
		t.Errorf("chl_viirs.Colormap = %q, want algae", viirs.Colormap)
	}
}

func TestGetUnknownLayer(t *testing.T) {
	r := Load(testConfig())
	if _, err := r.Get("salinity"); err == nil {
		t.Error("Get(salinity) should fail for unknown layer")
	}
}

func TestKeysStableOrder(t *testing.T) {
	r := Load(testConfig())
	keys := r.Keys()
	want := []string{"chl", "chl_viirs", "sst"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestUnconfiguredProviderDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Copernicus.Password = ""
	r := Load(cfg)

	sst, err := r.Get("sst")
	if err != nil {
		t.Fatalf("Get(sst) error = %v", err)
	}
	if sst.Configured() {
		t.Error("preset with incomplete credentials should report unconfigured")
	}
}
