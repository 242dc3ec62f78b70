// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tomtom215/pelagos/internal/logging"
	"github.com/tomtom215/pelagos/internal/sampler"
)

// maxBodyBytes bounds analysis request bodies; polygons are small.
const maxBodyBytes = 1 << 20

type sampleRequest struct {
	Polygon json.RawMessage `json:"polygon"`
	TimeISO string          `json:"timeISO"`
	Layers  []string        `json:"layers"`
}

type sampleResponse struct {
	Stats map[string]*sampler.Stats `json:"stats"`
}

// handleSample computes deterministic area statistics for a polygon across
// the requested layers. Only structurally invalid bodies fail the request;
// a layer with no usable data reports null statistics instead.
func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req sampleRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid JSON body")
		return
	}
	if len(req.Layers) == 0 {
		rw.ValidationError("layers must be non-empty", nil)
		return
	}

	geom, err := parsePolygon(req.Polygon)
	if err != nil {
		rw.ValidationError("polygon must be a GeoJSON Polygon or MultiPolygon", err.Error())
		return
	}

	stats := make(map[string]*sampler.Stats, len(req.Layers))
	for _, layer := range req.Layers {
		stats[layer] = nil

		preset, err := s.registry.Get(layer)
		if err != nil {
			continue
		}

		ts, err := s.capabilities.Resolve(r.Context(), preset, req.TimeISO)
		if err != nil {
			rw.BadRequest("unparseable timeISO")
			return
		}

		layerStats, _, err := s.sampler.Sample(r.Context(), preset, geom, ts)
		if err != nil {
			if errors.Is(err, sampler.ErrTooManyTiles) {
				rw.BadRequest("polygon too large for analysis")
				return
			}
			// One bad layer never fails a multi-layer request.
			logger := logging.Ctx(r.Context())
			logger.Warn().
				Str("layer", layer).
				Err(err).
				Msg("layer sampling failed")
			continue
		}
		stats[layer] = layerStats
	}

	rw.Success(sampleResponse{Stats: stats})
}

// parsePolygon accepts a GeoJSON geometry or Feature holding a Polygon or
// MultiPolygon.
func parsePolygon(raw json.RawMessage) (orb.Geometry, error) {
	if len(raw) == 0 {
		return nil, errors.New("polygon is required")
	}

	var geom orb.Geometry
	if g, err := geojson.UnmarshalGeometry(raw); err == nil {
		geom = g.Geometry()
	} else if f, err := geojson.UnmarshalFeature(raw); err == nil {
		geom = f.Geometry
	} else {
		return nil, errors.New("not valid GeoJSON")
	}

	switch g := geom.(type) {
	case orb.Polygon:
		if len(g) == 0 || len(g[0]) < 4 {
			return nil, errors.New("polygon ring too small")
		}
		return g, nil
	case orb.MultiPolygon:
		if len(g) == 0 {
			return nil, errors.New("empty multipolygon")
		}
		return g, nil
	default:
		return nil, errors.New("geometry must be Polygon or MultiPolygon")
	}
}
