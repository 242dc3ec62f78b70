// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pelagos/internal/breaker"
	"github.com/tomtom215/pelagos/internal/capability"
	"github.com/tomtom215/pelagos/internal/config"
	"github.com/tomtom215/pelagos/internal/features"
	"github.com/tomtom215/pelagos/internal/fetch"
	"github.com/tomtom215/pelagos/internal/ratelimit"
	"github.com/tomtom215/pelagos/internal/registry"
	"github.com/tomtom215/pelagos/internal/sampler"
)

// globalRateLimit is the per-IP safety net applied before the per-service
// policies: high enough that map clients never hit it, low enough to stop a
// runaway loop.
const (
	globalRateLimit       = 600
	globalRateLimitWindow = time.Minute
)

// Server holds the wired service objects behind the HTTP surface.
// Everything is injected so tests can swap upstream-facing pieces.
type Server struct {
	cfg          *config.Config
	registry     *registry.Registry
	limiter      *ratelimit.Limiter
	breakers     *breaker.Registry
	capabilities *capability.Cache
	fetcher      *fetch.Fetcher
	sampler      *sampler.Sampler
	features     features.Config
}

// NewServer creates the HTTP server over the given service objects.
func NewServer(
	cfg *config.Config,
	reg *registry.Registry,
	limiter *ratelimit.Limiter,
	breakers *breaker.Registry,
	capabilities *capability.Cache,
	fetcher *fetch.Fetcher,
	smp *sampler.Sampler,
) *Server {
	return &Server{
		cfg:          cfg,
		registry:     reg,
		limiter:      limiter,
		breakers:     breakers,
		capabilities: capabilities,
		fetcher:      fetcher,
		sampler:      smp,
		features: features.Config{
			EdgeThreshold:     cfg.Features.EdgeThreshold,
			FilamentThreshold: cfg.Features.FilamentThreshold,
		},
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Tile-Error", "X-Tile-Time-Used"},
		MaxAge:         86400,
	}))
	r.Use(httprate.LimitByIP(globalRateLimit, globalRateLimitWindow))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/tiles", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.With(s.limit("capability")).Get("/index", s.handleTileIndex)
		r.With(s.limit("tiles")).Get("/{layer}/{z}/{x}/{y}", s.handleTile)
	})

	r.Route("/rasters", func(r chi.Router) {
		r.Use(PrometheusMetrics)
		r.Use(s.limit("analysis"))

		r.Post("/sample", s.handleSample)
	})

	r.Route("/features", func(r chi.Router) {
		r.Use(PrometheusMetrics)
		r.Use(s.limit("analysis"))

		r.Post("/detect", s.handleDetect)
	})

	return r
}
