// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package api

import (
	"net/http"
)

type layerHealth struct {
	Configured   bool   `json:"configured"`
	BreakerState string `json:"breaker_state"`
}

type healthResponse struct {
	Status string                 `json:"status"`
	Layers map[string]layerHealth `json:"layers"`
}

// handleHealth reports liveness plus per-layer readiness. The process is
// healthy even with every upstream down; degraded layers show through the
// breaker state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	layers := make(map[string]layerHealth)
	for _, preset := range s.registry.All() {
		layers[preset.Key] = layerHealth{
			Configured:   preset.Configured(),
			BreakerState: s.breakers.State(preset.ProviderName),
		}
	}

	NewResponseWriter(w, r).Success(healthResponse{
		Status: "ok",
		Layers: layers,
	})
}
