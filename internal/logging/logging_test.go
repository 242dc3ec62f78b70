// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("empty context request id = %q, want empty", got)
	}

	ctx = ContextWithRequestID(ctx, "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Errorf("request id = %q, want req-42", got)
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if a == "" || a == b {
		t.Errorf("ids %q and %q should be distinct and non-empty", a, b)
	}
}

func TestCtxAttachesRequestID(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	ctx := ContextWithRequestID(context.Background(), "trace-9")
	logger := Ctx(ctx)
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), "trace-9") {
		t.Errorf("log line missing request id: %s", buf.String())
	}
}

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	old := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(old)

	slogger := slog.New(&SlogHandler{logger: Logger()})
	slogger.Info("supervisor event", slog.String("service", "http-server"), slog.Int("restarts", 2))

	out := buf.String()
	for _, want := range []string{"supervisor event", "http-server", "restarts"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestParseLevelFallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"WARN", "warn"},
		{"nonsense", "info"},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in).String(); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
