// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tomtom215/pelagos/internal/registry"
)

// maxCapabilitiesBytes bounds the capabilities document size. Real documents
// are a few hundred KB; anything larger is suspect.
const maxCapabilitiesBytes = 8 << 20

// HTTPSource fetches GetCapabilities documents over HTTP with the provider's
// configured credentials.
type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource creates a Source backed by the given HTTP client.
func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client}
}

// FetchCapabilities requests the provider's capabilities document.
func (s *HTTPSource) FetchCapabilities(ctx context.Context, preset registry.LayerPreset) ([]byte, error) {
	p := preset.Provider
	if !p.Configured() {
		return nil, fmt.Errorf("provider %s not configured", preset.ProviderName)
	}

	endpoint, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("provider base url: %w", err)
	}
	if !p.HostAllowed(endpoint.Hostname()) {
		return nil, fmt.Errorf("host %s not in allow list", endpoint.Hostname())
	}

	service := "WMTS"
	if p.Protocol == "wms" {
		service = "WMS"
	}
	q := endpoint.Query()
	q.Set("SERVICE", service)
	q.Set("REQUEST", "GetCapabilities")
	q.Set("VERSION", p.Version)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	applyAuth(req, p.AuthType, p.Username, p.Password, p.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capabilities request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capabilities request: status %d", resp.StatusCode)
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxCapabilitiesBytes))
	if err != nil {
		return nil, fmt.Errorf("capabilities body: %w", err)
	}
	return doc, nil
}

// applyAuth attaches provider credentials to an upstream request.
func applyAuth(req *http.Request, authType, username, password, token string) {
	switch authType {
	case "basic":
		req.SetBasicAuth(username, password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
