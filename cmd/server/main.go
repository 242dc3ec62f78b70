// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Pelagos proxies ocean raster tiles from WMTS/WMS providers, computes
// deterministic area statistics over polygons, and detects oceanographic
// features (fronts, filaments, eddies) in the sampled fields.
//
// Startup order:
//  1. Configuration (defaults, optional YAML file, PELAGOS_* environment)
//  2. Logging
//  3. Service objects: registry, breakers, limiter, capability cache,
//     fetcher, sampler
//  4. Supervision tree: capability refresher + HTTP server
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/pelagos/internal/api"
	"github.com/tomtom215/pelagos/internal/breaker"
	"github.com/tomtom215/pelagos/internal/capability"
	"github.com/tomtom215/pelagos/internal/config"
	"github.com/tomtom215/pelagos/internal/fetch"
	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/ratelimit"
	"github.com/tomtom215/pelagos/internal/registry"
	"github.com/tomtom215/pelagos/internal/sampler"
	"github.com/tomtom215/pelagos/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Pelagos exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	reg := registry.Load(cfg)
	for _, preset := range reg.All() {
		logging.Info().
			Str("layer", preset.Key).
			Str("provider", preset.ProviderName).
			Bool("configured", preset.Configured()).
			Msg("Layer registered")
	}

	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
	})

	limiter := ratelimit.New(map[string]ratelimit.Policy{
		"tiles": {
			MaxRequests: cfg.RateLimit.Tiles.MaxRequests,
			Window:      cfg.RateLimit.Tiles.Window,
			BlockFor:    cfg.RateLimit.Tiles.BlockFor,
		},
		"analysis": {
			MaxRequests: cfg.RateLimit.Analysis.MaxRequests,
			Window:      cfg.RateLimit.Analysis.Window,
			BlockFor:    cfg.RateLimit.Analysis.BlockFor,
		},
		"capability": {
			MaxRequests: cfg.RateLimit.Capability.MaxRequests,
			Window:      cfg.RateLimit.Capability.Window,
			BlockFor:    cfg.RateLimit.Capability.BlockFor,
		},
	})

	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	capCache := capability.New(capability.NewHTTPSource(client), cfg.Capability.TTL, cfg.Capability.MaxWindow)
	fetcher := fetch.New(client, breakers, cfg.Fetch)
	smp := sampler.New(
		sampler.NewFetchSource(fetcher, cfg.Fetch.MaxTimeFallbackDays),
		cfg.Sampler.Concurrency,
		cfg.Sampler.MaxTiles,
	)

	server := api.NewServer(cfg, reg, limiter, breakers, capCache, fetcher, smp)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddUpkeepService(capability.NewRefresher(capCache, reg, cfg.Capability.RefreshInterval))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("addr", httpServer.Addr).
		Msg("Pelagos listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Pelagos stopped")
	return nil
}
