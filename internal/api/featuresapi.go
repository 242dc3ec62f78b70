// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pelagos/internal/features"
	"github.com/tomtom215/pelagos/internal/sampler"
)

// detectGridSize is the resolution of the sampled field the detector runs
// over. 64x64 resolves mesoscale structure at every canonical zoom without
// touching more tiles than a sample request would.
const detectGridSize = 64

type detectRequest struct {
	Polygon json.RawMessage `json:"polygon"`
	TimeISO string          `json:"timeISO"`

	// Layer defaults to sea-surface temperature, the layer fronts and
	// eddies are defined on.
	Layer string `json:"layer"`

	MinScore  float64 `json:"minScore"`
	MaxReturn int     `json:"maxReturn"`
}

type detectResponse struct {
	Layer    string             `json:"layer"`
	Time     string             `json:"time"`
	ZoomUsed int                `json:"zoomUsed"`
	Features []features.Polygon `json:"features"`
}

// handleDetect samples a temperature field over the polygon and returns the
// detected oceanographic features, ranked. Detection is stateless: nothing
// is persisted, so identical requests over identical imagery return
// identical features.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req detectRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}

	geom, err := parsePolygon(req.Polygon)
	if err != nil {
		rw.ValidationError("polygon must be a GeoJSON Polygon or MultiPolygon", err.Error())
		return
	}

	layer := req.Layer
	if layer == "" {
		layer = "sst"
	}
	preset, err := s.registry.Get(layer)
	if err != nil {
		rw.NotFound("unknown layer")
		return
	}

	ts, err := s.capabilities.Resolve(r.Context(), preset, req.TimeISO)
	if err != nil {
		rw.BadRequest("unparseable timeISO")
		return
	}

	field, err := s.sampler.Field(r.Context(), preset, geom.Bound(), ts, detectGridSize, detectGridSize)
	if err != nil {
		if errors.Is(err, sampler.ErrTooManyTiles) {
			rw.BadRequest("polygon too large for analysis")
			return
		}
		rw.ServiceUnavailable("field sampling failed")
		return
	}

	minScore := req.MinScore
	if minScore <= 0 {
		minScore = s.cfg.Features.MinScore
	}
	maxReturn := req.MaxReturn
	if maxReturn <= 0 {
		maxReturn = s.cfg.Features.MaxReturn
	}

	detected := features.Detect(field, s.features)
	ranked := features.Rank(detected, features.RankOptions{
		MinScore:  minScore,
		MaxReturn: maxReturn,
	})
	if ranked == nil {
		ranked = []features.Polygon{}
	}

	rw.Success(detectResponse{
		Layer:    preset.Key,
		Time:     ts.UTC().Format(time.RFC3339),
		ZoomUsed: field.ZoomUsed,
		Features: ranked,
	})
}
