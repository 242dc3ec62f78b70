// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream failed")

func failingOp() ([]byte, error) { return nil, errUpstream }

func okOp() ([]byte, error) { return []byte("tile"), nil }

func TestClosedPassesThrough(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 5, ResetTimeout: time.Second, HalfOpenRequests: 3})

	got, err := r.Execute(context.Background(), "copernicus", okOp)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if string(got) != "tile" {
		t.Errorf("result = %q, want tile", got)
	}
	if s := r.State("copernicus"); s != "closed" {
		t.Errorf("State = %q, want closed", s)
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenRequests: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Execute(ctx, "copernicus", failingOp); !errors.Is(err, errUpstream) {
			t.Fatalf("failure %d: err = %v, want upstream error", i+1, err)
		}
	}

	if s := r.State("copernicus"); s != "open" {
		t.Fatalf("State = %q after threshold failures, want open", s)
	}

	// Open circuit rejects without invoking the operation.
	invoked := false
	_, err := r.Execute(ctx, "copernicus", func() ([]byte, error) {
		invoked = true
		return nil, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if invoked {
		t.Error("operation invoked while circuit open")
	}
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenRequests: 1})
	ctx := context.Background()

	r.Execute(ctx, "copernicus", failingOp)
	r.Execute(ctx, "copernicus", failingOp)
	r.Execute(ctx, "copernicus", okOp)
	r.Execute(ctx, "copernicus", failingOp)
	r.Execute(ctx, "copernicus", failingOp)

	if s := r.State("copernicus"); s != "closed" {
		t.Errorf("State = %q, want closed (failures interleaved with success)", s)
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTimeout: 50 * time.Millisecond, HalfOpenRequests: 1})
	ctx := context.Background()

	r.Execute(ctx, "copernicus", failingOp)
	if s := r.State("copernicus"); s != "open" {
		t.Fatalf("State = %q, want open", s)
	}

	time.Sleep(80 * time.Millisecond)

	// Trial request in half-open; success closes the circuit.
	if _, err := r.Execute(ctx, "copernicus", okOp); err != nil {
		t.Fatalf("half-open trial error = %v", err)
	}
	if s := r.State("copernicus"); s != "closed" {
		t.Errorf("State = %q after successful trial, want closed", s)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTimeout: 50 * time.Millisecond, HalfOpenRequests: 1})
	ctx := context.Background()

	r.Execute(ctx, "copernicus", failingOp)
	time.Sleep(80 * time.Millisecond)

	r.Execute(ctx, "copernicus", failingOp)
	if s := r.State("copernicus"); s != "open" {
		t.Errorf("State = %q after failed trial, want open", s)
	}
}

func TestServicesIsolated(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTimeout: time.Minute, HalfOpenRequests: 1})
	ctx := context.Background()

	r.Execute(ctx, "copernicus", failingOp)
	if s := r.State("copernicus"); s != "open" {
		t.Fatalf("copernicus State = %q, want open", s)
	}
	if s := r.State("erddap"); s != "closed" {
		t.Errorf("erddap State = %q, want closed (independent breaker)", s)
	}
}

func TestCancelledContext(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 5, ResetTimeout: time.Second, HalfOpenRequests: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Execute(ctx, "copernicus", okOp); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
