// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package fetch retrieves raster tiles from upstream WMTS providers with
// layered resilience: a process-wide concurrency gate, per-provider request
// pacing, per-provider circuit breakers, and an ordered fallback chain over
// matrix sets and previous days. A tile request never fails outright; when
// everything is exhausted the caller gets a transparent sentinel tile with a
// diagnostic tag.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pelagos/internal/breaker"
	"github.com/tomtom215/pelagos/internal/config"
	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/metrics"
	"github.com/tomtom215/pelagos/internal/registry"
)

// maxTileBytes bounds a single tile response body.
const maxTileBytes = 4 << 20

// Blank tile reasons, surfaced in metrics and the X-Tile-Error header.
const (
	ReasonNotConfigured  = "not_configured"
	ReasonBreakerOpen    = "breaker_open"
	ReasonUpstreamFailed = "upstream_failed"
	ReasonNoImagery      = "no_imagery"
)

// Result is the outcome of one tile request. Data is always non-empty:
// either real imagery or the sentinel blank tile.
type Result struct {
	Data        []byte
	ContentType string

	// Blank marks a sentinel response; ErrorTag says why.
	Blank    bool
	ErrorTag string

	// TimeUsed and MatrixSetUsed record which fallback served the tile.
	TimeUsed      time.Time
	MatrixSetUsed string

	// Attempts is the number of upstream strategies consumed.
	Attempts int
}

// Fetcher executes tile requests against upstream providers.
type Fetcher struct {
	client   *http.Client
	breakers *breaker.Registry
	cfg      config.FetchConfig

	// sem is the process-wide cap on in-flight upstream requests.
	sem *semaphore.Weighted

	mu     sync.Mutex
	pacers map[string]*rate.Limiter
}

// New creates a Fetcher. A nil client gets a default with the configured
// per-request timeout.
func New(client *http.Client, breakers *breaker.Registry, cfg config.FetchConfig) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:   client,
		breakers: breakers,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		pacers:   make(map[string]*rate.Limiter),
	}
}

// pacer returns the request pacer for a provider, creating it on first use.
func (f *Fetcher) pacer(provider string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.pacers[provider]; ok {
		return p
	}
	rps := f.cfg.PacerRPS
	if rps <= 0 {
		rps = 10
	}
	burst := f.cfg.PacerBurst
	if burst <= 0 {
		burst = 4
	}
	p := rate.NewLimiter(rate.Limit(rps), burst)
	f.pacers[provider] = p
	return p
}

// Tile fetches one tile, walking the attempt chain until imagery is found.
// It returns an error only when the caller's context is done; all upstream
// failures, including per-request timeouts, degrade to a sentinel result.
func (f *Fetcher) Tile(ctx context.Context, preset registry.LayerPreset, z, x, y int, style string, attempts []Attempt) (Result, error) {
	start := time.Now()

	if !preset.Configured() {
		metrics.RecordBlankTile(preset.Key, ReasonNotConfigured)
		metrics.RecordTileFetch(preset.Key, "blank", 0, time.Since(start))
		return blankResult(ReasonNotConfigured, 0), nil
	}
	if style == "" {
		style = preset.Style
	}

	var lastReason string
	for i, attempt := range attempts {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		data, contentType, err := f.fetchOne(ctx, preset, z, x, y, style, attempt)
		switch {
		case err == nil && data != nil:
			outcome := "ok"
			if attempt.Tag != TagPrimary {
				outcome = attempt.Tag
			}
			metrics.RecordTileFetch(preset.Key, outcome, i+1, time.Since(start))
			return Result{
				Data:          data,
				ContentType:   contentType,
				TimeUsed:      attempt.Time,
				MatrixSetUsed: attempt.MatrixSet,
				Attempts:      i + 1,
			}, nil

		case err == nil:
			// Upstream healthy but no imagery for this strategy.
			lastReason = ReasonNoImagery

		case errors.Is(err, breaker.ErrOpen):
			// Stop the chain: every attempt hits the same provider.
			logging.Debug().Str("layer", preset.Key).Msg("tile fetch rejected, circuit open")
			metrics.RecordBlankTile(preset.Key, ReasonBreakerOpen)
			metrics.RecordTileFetch(preset.Key, "blank", i+1, time.Since(start))
			return blankResult(ReasonBreakerOpen, i+1), nil

		case ctx.Err() != nil:
			// Only the caller's own cancellation aborts the chain. An
			// http.Client timeout also unwraps to DeadlineExceeded, so the
			// context is the authority, not the wrapped error.
			return Result{}, ctx.Err()

		default:
			logging.Debug().
				Str("layer", preset.Key).
				Str("tag", attempt.Tag).
				Err(err).
				Msg("tile fetch attempt failed")
			lastReason = ReasonUpstreamFailed
		}
	}

	if lastReason == "" {
		lastReason = ReasonNoImagery
	}
	metrics.RecordBlankTile(preset.Key, lastReason)
	metrics.RecordTileFetch(preset.Key, "blank", len(attempts), time.Since(start))
	return blankResult(lastReason, len(attempts)), nil
}

// fetchOne performs a single upstream attempt through the pacer, semaphore
// and breaker. A nil data with nil error means the upstream answered but has
// no imagery for this strategy.
func (f *Fetcher) fetchOne(ctx context.Context, preset registry.LayerPreset, z, x, y int, style string, attempt Attempt) ([]byte, string, error) {
	if err := f.pacer(preset.ProviderName).Wait(ctx); err != nil {
		return nil, "", err
	}
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer f.sem.Release(1)

	metrics.UpstreamInFlight.Inc()
	defer metrics.UpstreamInFlight.Dec()

	tileURL, err := buildTileURL(preset, z, x, y, style, attempt)
	if err != nil {
		return nil, "", err
	}

	var (
		contentType string
		noImagery   bool
	)
	data, err := f.breakers.Execute(ctx, preset.ProviderName, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
		if err != nil {
			return nil, err
		}
		applyAuth(req, preset.Provider)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
			if err != nil {
				return nil, err
			}
			contentType = resp.Header.Get("Content-Type")
			return body, nil

		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
			// The provider is healthy; this time/matrix combination has
			// no imagery. Not a breaker failure.
			noImagery = true
			return nil, nil

		default:
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return nil, "", err
	}
	if noImagery {
		return nil, "", nil
	}
	return data, contentType, nil
}

// buildTileURL constructs the upstream request for one tile: WMTS GetTile
// KVP for matrix-based providers, WMS GetMap with a computed bounding box
// for the rest.
func buildTileURL(preset registry.LayerPreset, z, x, y int, style string, attempt Attempt) (string, error) {
	endpoint, err := url.Parse(preset.Provider.BaseURL)
	if err != nil {
		return "", fmt.Errorf("provider base url: %w", err)
	}
	if !preset.Provider.HostAllowed(endpoint.Hostname()) {
		return "", fmt.Errorf("host %s not in allow list", endpoint.Hostname())
	}

	q := endpoint.Query()
	if preset.Provider.Protocol == "wms" {
		size := preset.TileSize
		if size <= 0 {
			size = 256
		}
		lonMin, latMin, lonMax, latMax := tileBBox(z, x, y)

		q.Set("SERVICE", "WMS")
		q.Set("REQUEST", "GetMap")
		q.Set("VERSION", preset.Provider.Version)
		q.Set("LAYERS", preset.LayerID)
		q.Set("STYLES", style)
		q.Set("FORMAT", preset.Format)
		q.Set("TRANSPARENT", "true")
		q.Set("WIDTH", strconv.Itoa(size))
		q.Set("HEIGHT", strconv.Itoa(size))
		q.Set("CRS", "EPSG:4326")
		// WMS 1.3.0 with EPSG:4326 uses lat/lon axis order.
		q.Set("BBOX", fmt.Sprintf("%g,%g,%g,%g", latMin, lonMin, latMax, lonMax))
		q.Set("TIME", attempt.Time.UTC().Format(time.RFC3339))
	} else {
		q.Set("SERVICE", "WMTS")
		q.Set("REQUEST", "GetTile")
		q.Set("VERSION", preset.Provider.Version)
		q.Set("LAYER", preset.LayerID)
		q.Set("STYLE", style)
		q.Set("FORMAT", preset.Format)
		q.Set("TILEMATRIXSET", attempt.MatrixSet)
		q.Set("TILEMATRIX", strconv.Itoa(z))
		q.Set("TILEROW", strconv.Itoa(y))
		q.Set("TILECOL", strconv.Itoa(x))
		q.Set("TIME", attempt.Time.UTC().Format(time.RFC3339))
	}
	endpoint.RawQuery = q.Encode()

	return endpoint.String(), nil
}

// tileBBox converts a Web-Mercator tile coordinate to its geographic bounds.
func tileBBox(z, x, y int) (lonMin, latMin, lonMax, latMax float64) {
	n := math.Exp2(float64(z))
	lonMin = float64(x)/n*360 - 180
	lonMax = float64(x+1)/n*360 - 180
	latMax = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	latMin = math.Atan(math.Sinh(math.Pi*(1-2*float64(y+1)/n))) * 180 / math.Pi
	return lonMin, latMin, lonMax, latMax
}

// applyAuth attaches provider credentials to an upstream request.
func applyAuth(req *http.Request, p config.ProviderConfig) {
	switch p.AuthType {
	case "basic":
		req.SetBasicAuth(p.Username, p.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
}

func blankResult(reason string, attempts int) Result {
	return Result{
		Data:        blankTile,
		ContentType: "image/png",
		Blank:       true,
		ErrorTag:    reason,
		Attempts:    attempts,
	}
}
