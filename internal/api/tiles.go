// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/pelagos/internal/fetch"
	"github.com/tomtom215/pelagos/internal/logging"
)

// tileCacheControl keeps tiles cacheable by browsers and CDNs; imagery for a
// fixed (layer, time, coordinate) never changes.
const tileCacheControl = "public, max-age=600"

const maxTileZoom = 22

// handleTile proxies one raster tile. A single tile never returns 5xx: when
// every upstream strategy fails the client gets a transparent sentinel tile
// with a diagnostic header, and the map keeps rendering.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	preset, err := s.registry.Get(chi.URLParam(r, "layer"))
	if err != nil {
		rw.NotFound("unknown layer")
		return
	}

	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		rw.BadRequest("tile coordinates must be integers")
		return
	}
	if z < 0 || z > maxTileZoom || x < 0 || y < 0 || x >= 1<<uint(z) || y >= 1<<uint(z) {
		rw.BadRequest("tile coordinates out of range")
		return
	}
	if z < preset.MinZoom || (preset.MaxZoom > 0 && z > preset.MaxZoom) {
		rw.BadRequest("zoom outside layer range")
		return
	}

	resolved, err := s.capabilities.Resolve(r.Context(), preset, r.URL.Query().Get("time"))
	if err != nil {
		rw.BadRequest("unparseable time parameter")
		return
	}

	style := r.URL.Query().Get("style")
	attempts := fetch.BuildAttempts(preset, resolved, s.cfg.Fetch.MaxTimeFallbackDays)

	res, err := s.fetcher.Tile(r.Context(), preset, z, x, y, style, attempts)
	if err != nil {
		// Context cancellation: the client hung up, nothing to write.
		logger := logging.Ctx(r.Context())
		logger.Debug().Err(err).Msg("tile request cancelled")
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", tileCacheControl)
	if res.Blank {
		w.Header().Set("X-Tile-Error", res.ErrorTag)
	} else {
		w.Header().Set("X-Tile-Time-Used", res.TimeUsed.UTC().Format(time.RFC3339))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Debug().Err(err).Msg("tile write failed")
	}
}

// tileIndexResponse lists the known imagery timestamps for a layer.
type tileIndexResponse struct {
	Source     string   `json:"source"`
	Layer      string   `json:"layer"`
	Title      string   `json:"title"`
	Units      string   `json:"units"`
	Timestamps []string `json:"timestamps"`
}

// handleTileIndex serves the valid-time catalog for a layer, optionally
// restricted to a trailing window. Catalog failures for a configured
// provider surface as 502 so clients can tell stale data from no data.
func (s *Server) handleTileIndex(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	layer := r.URL.Query().Get("layer")
	if layer == "" {
		rw.BadRequest("layer parameter is required")
		return
	}
	preset, err := s.registry.Get(layer)
	if err != nil {
		rw.NotFound("unknown layer")
		return
	}

	if source := r.URL.Query().Get("source"); source != "" && source != preset.ProviderName {
		rw.BadRequest("layer " + layer + " is not served by source " + source)
		return
	}

	windowHours := 0
	if raw := r.URL.Query().Get("windowHours"); raw != "" {
		windowHours, err = strconv.Atoi(raw)
		if err != nil || windowHours < 0 {
			rw.BadRequest("windowHours must be a non-negative integer")
			return
		}
	}

	times, synthesized := s.capabilities.Catalog(r.Context(), preset)
	if synthesized && preset.Configured() {
		rw.ExternalServiceError(preset.ProviderName, "upstream catalog unavailable")
		return
	}

	if windowHours > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
		kept := make([]time.Time, 0, len(times))
		for _, ts := range times {
			if !ts.Before(cutoff) {
				kept = append(kept, ts)
			}
		}
		times = kept
	} else if n := s.cfg.Capability.RecentCount; n > 0 && len(times) > n {
		// Without an explicit window only the freshest entries are exposed.
		times = times[len(times)-n:]
	}

	stamps := make([]string, 0, len(times))
	for _, ts := range times {
		stamps = append(stamps, ts.UTC().Format(time.RFC3339))
	}

	rw.Success(tileIndexResponse{
		Source:     preset.ProviderName,
		Layer:      preset.Key,
		Title:      preset.Title,
		Units:      string(preset.Units),
		Timestamps: stamps,
	})
}
