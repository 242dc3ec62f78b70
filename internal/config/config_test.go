// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3857 {
		t.Errorf("Server.Port = %d, want 3857", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("Breaker.FailureThreshold = %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Breaker.ResetTimeout != 30*time.Second {
		t.Errorf("Breaker.ResetTimeout = %v, want 30s", cfg.Breaker.ResetTimeout)
	}
	if cfg.Fetch.MaxConcurrent != 4 {
		t.Errorf("Fetch.MaxConcurrent = %d, want 4", cfg.Fetch.MaxConcurrent)
	}
	if cfg.RateLimit.Analysis.BlockFor != 5*time.Minute {
		t.Errorf("RateLimit.Analysis.BlockFor = %v, want 5m", cfg.RateLimit.Analysis.BlockFor)
	}
	if cfg.Capability.TTL != 15*time.Minute {
		t.Errorf("Capability.TTL = %v, want 15m", cfg.Capability.TTL)
	}
	if cfg.Copernicus.Protocol != "wmts" {
		t.Errorf("Copernicus.Protocol = %q, want wmts", cfg.Copernicus.Protocol)
	}
	if cfg.ERDDAP.Protocol != "wms" || cfg.ERDDAP.Version != "1.3.0" {
		t.Errorf("ERDDAP = %q/%q, want wms/1.3.0", cfg.ERDDAP.Protocol, cfg.ERDDAP.Version)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PELAGOS_HTTP_PORT", "8080")
	t.Setenv("PELAGOS_LOG_LEVEL", "debug")
	t.Setenv("PELAGOS_COPERNICUS_USERNAME", "cmems-user")
	t.Setenv("PELAGOS_COPERNICUS_PASSWORD", "secret")
	t.Setenv("PELAGOS_COPERNICUS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Copernicus.Configured() {
		t.Error("Copernicus.Configured() = false with credentials set, want true")
	}
}

func TestLoadEnvSliceFields(t *testing.T) {
	t.Setenv("PELAGOS_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Server.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9090\nlogging:\n  level: warn\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoadInvalidLevel(t *testing.T) {
	t.Setenv("PELAGOS_LOG_LEVEL", "loud")

	if _, err := Load(); err == nil {
		t.Error("Load() with invalid log level should fail validation")
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("PELAGOS_UNRELATED_SETTING", "whatever")

	if _, err := Load(); err != nil {
		t.Errorf("Load() error = %v, unmapped env vars should be ignored", err)
	}
}

func TestProviderConfigured(t *testing.T) {
	tests := []struct {
		name string
		p    ProviderConfig
		want bool
	}{
		{"disabled", ProviderConfig{Enabled: false, BaseURL: "https://x", AuthType: "none"}, false},
		{"no base url", ProviderConfig{Enabled: true, AuthType: "none"}, false},
		{"none auth", ProviderConfig{Enabled: true, BaseURL: "https://x", AuthType: "none"}, true},
		{"basic missing password", ProviderConfig{Enabled: true, BaseURL: "https://x", AuthType: "basic", Username: "u"}, false},
		{"basic complete", ProviderConfig{Enabled: true, BaseURL: "https://x", AuthType: "basic", Username: "u", Password: "p"}, true},
		{"bearer missing token", ProviderConfig{Enabled: true, BaseURL: "https://x", AuthType: "bearer"}, false},
		{"bearer complete", ProviderConfig{Enabled: true, BaseURL: "https://x", AuthType: "bearer", Token: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Configured(); got != tt.want {
				t.Errorf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderHostAllowed(t *testing.T) {
	p := ProviderConfig{
		BaseURL:      "https://wmts.marine.copernicus.eu/teroWmts",
		AllowedHosts: []string{"wmts.marine.copernicus.eu"},
	}
	if !p.HostAllowed("wmts.marine.copernicus.eu") {
		t.Error("listed host should be allowed")
	}
	if p.HostAllowed("evil.example.com") {
		t.Error("unlisted host should be rejected")
	}

	// Empty allow list falls back to the BaseURL host only.
	p.AllowedHosts = nil
	if !p.HostAllowed("wmts.marine.copernicus.eu") {
		t.Error("base URL host should be allowed with empty allow list")
	}
	if p.HostAllowed("other.example.com") {
		t.Error("non-base host should be rejected with empty allow list")
	}
}
