// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pelagos/config.yaml",
	"/etc/pelagos/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "PELAGOS_CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3857,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Copernicus: ProviderConfig{
			Enabled:           false, // requires credentials
			BaseURL:           "https://wmts.marine.copernicus.eu/teroWmts",
			AllowedHosts:      []string{"wmts.marine.copernicus.eu"},
			Protocol:          "wmts",
			Version:           "1.0.0",
			MatrixSet:         "EPSG:3857",
			FallbackMatrixSet: "EPSG:3857@nearest",
			AuthType:          "basic",
		},
		ERDDAP: ProviderConfig{
			Enabled:      false,
			BaseURL:      "https://coastwatch.noaa.gov/erddap/wms/noaacwNPPVIIRSchlaWeekly/request",
			AllowedHosts: []string{"coastwatch.noaa.gov"},
			Protocol:     "wms",
			Version:      "1.3.0",
			AuthType:     "none",
		},
		Fetch: FetchConfig{
			Timeout:             10 * time.Second,
			MaxConcurrent:       4,
			MaxTimeFallbackDays: 5,
			PacerRPS:            20,
			PacerBurst:          8,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			HalfOpenRequests: 3,
		},
		RateLimit: RateLimitConfig{
			Tiles: RatePolicy{
				MaxRequests: 100,
				Window:      time.Minute,
				BlockFor:    0,
			},
			Analysis: RatePolicy{
				MaxRequests: 10,
				Window:      time.Minute,
				BlockFor:    5 * time.Minute,
			},
			Capability: RatePolicy{
				MaxRequests: 20,
				Window:      time.Minute,
				BlockFor:    0,
			},
		},
		Capability: CapabilityConfig{
			TTL:             15 * time.Minute,
			RefreshInterval: 10 * time.Minute,
			RecentCount:     5,
			MaxWindow:       14 * 24 * time.Hour,
		},
		Sampler: SamplerConfig{
			Concurrency: 8,
			MaxTiles:    64,
		},
		Features: FeaturesConfig{
			EdgeThreshold:     2.0, // °F between adjacent cells
			FilamentThreshold: 0.5,
			MinScore:          20,
			MaxReturn:         50,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// PELAGOS_COPERNICUS_USERNAME -> copernicus.username
	// PELAGOS_RATELIMIT_TILES_MAX_REQUESTS -> ratelimit.tiles.max_requests
	envProvider := env.Provider("PELAGOS_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when supplied via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"copernicus.allowed_hosts",
	"erddap.allowed_hosts",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms PELAGOS_-prefixed environment variable names to
// koanf config paths.
//
// Examples:
//   - PELAGOS_COPERNICUS_USERNAME -> copernicus.username
//   - PELAGOS_LOG_LEVEL -> logging.level
//   - PELAGOS_FETCH_MAX_CONCURRENT -> fetch.max_concurrent
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "PELAGOS_"))

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them.
	// This prevents random environment variables from polluting config.
	return ""
}

// envMappings maps flat environment variable names to nested config paths.
var envMappings = map[string]string{
	// Server mappings
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"cors_origins": "server.cors_origins",

	// Logging mappings
	"log_level":  "logging.level",
	"log_format": "logging.format",

	// Copernicus provider mappings
	"copernicus_enabled":             "copernicus.enabled",
	"copernicus_base_url":            "copernicus.base_url",
	"copernicus_allowed_hosts":       "copernicus.allowed_hosts",
	"copernicus_protocol":            "copernicus.protocol",
	"copernicus_version":             "copernicus.version",
	"copernicus_matrix_set":          "copernicus.matrix_set",
	"copernicus_fallback_matrix_set": "copernicus.fallback_matrix_set",
	"copernicus_auth_type":           "copernicus.auth_type",
	"copernicus_username":            "copernicus.username",
	"copernicus_password":            "copernicus.password",
	"copernicus_token":               "copernicus.token",

	// ERDDAP provider mappings
	"erddap_enabled":       "erddap.enabled",
	"erddap_base_url":      "erddap.base_url",
	"erddap_allowed_hosts": "erddap.allowed_hosts",
	"erddap_protocol":      "erddap.protocol",
	"erddap_version":       "erddap.version",
	"erddap_matrix_set":    "erddap.matrix_set",
	"erddap_auth_type":     "erddap.auth_type",
	"erddap_username":      "erddap.username",
	"erddap_password":      "erddap.password",
	"erddap_token":         "erddap.token",

	// Fetch mappings
	"fetch_timeout":        "fetch.timeout",
	"fetch_max_concurrent": "fetch.max_concurrent",
	"fetch_time_fallback":  "fetch.max_time_fallback_days",
	"fetch_pacer_rps":      "fetch.pacer_rps",
	"fetch_pacer_burst":    "fetch.pacer_burst",

	// Breaker mappings
	"breaker_failure_threshold":  "breaker.failure_threshold",
	"breaker_reset_timeout":      "breaker.reset_timeout",
	"breaker_half_open_requests": "breaker.half_open_requests",

	// Rate limit mappings
	"ratelimit_tiles_max":         "ratelimit.tiles.max_requests",
	"ratelimit_tiles_window":      "ratelimit.tiles.window",
	"ratelimit_tiles_block":       "ratelimit.tiles.block_for",
	"ratelimit_analysis_max":      "ratelimit.analysis.max_requests",
	"ratelimit_analysis_window":   "ratelimit.analysis.window",
	"ratelimit_analysis_block":    "ratelimit.analysis.block_for",
	"ratelimit_capability_max":    "ratelimit.capability.max_requests",
	"ratelimit_capability_window": "ratelimit.capability.window",
	"ratelimit_capability_block":  "ratelimit.capability.block_for",

	// Capability cache mappings
	"capability_ttl":              "capability.ttl",
	"capability_refresh_interval": "capability.refresh_interval",
	"capability_recent_count":     "capability.recent_count",
	"capability_max_window":       "capability.max_window",

	// Sampler mappings
	"sampler_concurrency": "sampler.concurrency",
	"sampler_max_tiles":   "sampler.max_tiles",

	// Feature detection mappings
	"features_edge_threshold":     "features.edge_threshold",
	"features_filament_threshold": "features.filament_threshold",
	"features_min_score":          "features.min_score",
	"features_max_return":         "features.max_return",
}
