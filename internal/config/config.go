// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package config holds all application configuration loaded from environment
// variables and an optional YAML config file.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting (highest priority)
//
// A provider section missing its base URL or credentials does NOT fail
// startup; the layers backed by that provider degrade to "not configured"
// and all requests for them return sentinel tiles / null statistics.
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Pelagos server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Copernicus ProviderConfig   `koanf:"copernicus"`
	ERDDAP     ProviderConfig   `koanf:"erddap"`
	Fetch      FetchConfig      `koanf:"fetch"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Capability CapabilityConfig `koanf:"capability"`
	Sampler    SamplerConfig    `koanf:"sampler"`
	Features   FeaturesConfig   `koanf:"features"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// ProviderConfig describes one upstream raster imagery provider.
//
// Protocol selects the tile request style: "wmts" providers serve tiles by
// matrix/row/column, "wms" providers serve GetMap requests with a bounding
// box computed from the tile coordinate.
//
// AuthType selects how credentials are attached to upstream requests:
// "none", "basic" (Username/Password), or "bearer" (Token).
type ProviderConfig struct {
	Enabled           bool     `koanf:"enabled"`
	BaseURL           string   `koanf:"base_url"`
	AllowedHosts      []string `koanf:"allowed_hosts"`
	Protocol          string   `koanf:"protocol" validate:"oneof=wmts wms"`
	Version           string   `koanf:"version"`
	MatrixSet         string   `koanf:"matrix_set"`
	FallbackMatrixSet string   `koanf:"fallback_matrix_set"`
	AuthType          string   `koanf:"auth_type" validate:"oneof=none basic bearer"`
	Username          string   `koanf:"username"`
	Password          string   `koanf:"password"`
	Token             string   `koanf:"token"`
}

// Configured reports whether the provider has enough configuration to be
// used. Basic auth needs both username and password; bearer needs a token.
func (p ProviderConfig) Configured() bool {
	if !p.Enabled || p.BaseURL == "" {
		return false
	}
	switch p.AuthType {
	case "basic":
		return p.Username != "" && p.Password != ""
	case "bearer":
		return p.Token != ""
	}
	return true
}

// HostAllowed reports whether the resolved endpoint host is in the
// provider's allow list. An empty allow list permits only the BaseURL host.
func (p ProviderConfig) HostAllowed(host string) bool {
	if len(p.AllowedHosts) == 0 {
		u, err := url.Parse(p.BaseURL)
		return err == nil && u.Hostname() == host
	}
	for _, h := range p.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

// FetchConfig bounds upstream tile fetching.
type FetchConfig struct {
	// Timeout applies to every individual upstream request.
	Timeout time.Duration `koanf:"timeout"`

	// MaxConcurrent is the process-wide cap on in-flight upstream
	// requests, independent of the caller-facing rate limiter.
	MaxConcurrent int64 `koanf:"max_concurrent" validate:"min=1"`

	// MaxTimeFallbackDays bounds how many previous UTC days the fetcher
	// tries when the requested time has no imagery.
	MaxTimeFallbackDays int `koanf:"max_time_fallback_days" validate:"min=0,max=14"`

	// PacerRPS smooths request bursts toward a single provider.
	PacerRPS   float64 `koanf:"pacer_rps"`
	PacerBurst int     `koanf:"pacer_burst"`
}

// BreakerConfig configures the per-upstream circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
	ResetTimeout     time.Duration `koanf:"reset_timeout"`
	HalfOpenRequests uint32        `koanf:"half_open_requests" validate:"min=1"`
}

// RatePolicy is one sliding-window admission policy.
type RatePolicy struct {
	MaxRequests int           `koanf:"max_requests" validate:"min=1"`
	Window      time.Duration `koanf:"window"`
	BlockFor    time.Duration `koanf:"block_for"`
}

// RateLimitConfig holds the per-route admission policies.
type RateLimitConfig struct {
	Tiles      RatePolicy `koanf:"tiles"`
	Analysis   RatePolicy `koanf:"analysis"`
	Capability RatePolicy `koanf:"capability"`
}

// CapabilityConfig configures the capability/time cache.
type CapabilityConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	RecentCount     int           `koanf:"recent_count" validate:"min=1"`

	// MaxWindow bounds start/end/period interval expansion so sub-hour
	// periods over multi-day ranges cannot grow without bound.
	MaxWindow time.Duration `koanf:"max_window"`
}

// SamplerConfig bounds deterministic area sampling.
type SamplerConfig struct {
	// Concurrency bounds tile fan-out within one sample request.
	Concurrency int `koanf:"concurrency" validate:"min=1"`

	// MaxTiles rejects sample requests whose canonical grid would touch
	// more tiles than this.
	MaxTiles int `koanf:"max_tiles" validate:"min=1"`
}

// FeaturesConfig holds feature-detection thresholds.
type FeaturesConfig struct {
	// EdgeThreshold is the gradient magnitude (°F between adjacent grid
	// cells) above which a cell belongs to an edge.
	EdgeThreshold float64 `koanf:"edge_threshold"`

	// FilamentThreshold is the weaker gradient bound for filaments and
	// eddies.
	FilamentThreshold float64 `koanf:"filament_threshold"`

	MinScore  float64 `koanf:"min_score"`
	MaxReturn int     `koanf:"max_return" validate:"min=1"`
}

// Validate checks structural constraints that would make the process
// unusable. Provider credential completeness is intentionally NOT validated
// here; incomplete providers degrade their layers instead.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	for name, p := range map[string]ProviderConfig{"copernicus": c.Copernicus, "erddap": c.ERDDAP} {
		if p.BaseURL == "" {
			continue
		}
		if _, err := url.Parse(p.BaseURL); err != nil {
			return fmt.Errorf("config validation: %s.base_url: %w", name, err)
		}
	}
	return nil
}
