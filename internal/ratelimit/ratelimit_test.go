// Pelagos - Ocean Raster Tile Proxy and Feature Analysis
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(policies map[string]Policy) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return NewWithClock(policies, clock.now), clock
}

func TestAllowWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 3, Window: time.Minute},
	})

	for i := 0; i < 3; i++ {
		d := l.Allow("tiles", "alice")
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if d := l.Allow("tiles", "alice"); d.Allowed {
		t.Error("4th request allowed, want denied")
	}
}

func TestExactlyMaxDenials(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"analysis": {MaxRequests: 2, Window: time.Minute},
	})

	denied := 0
	for i := 0; i < 10; i++ {
		if d := l.Allow("analysis", "bob"); !d.Allowed {
			denied++
		}
	}
	if denied != 8 {
		t.Errorf("denied = %d, want 8 of 10 with max 2", denied)
	}
}

func TestWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 2, Window: time.Minute},
	})

	l.Allow("tiles", "alice")
	l.Allow("tiles", "alice")
	if d := l.Allow("tiles", "alice"); d.Allowed {
		t.Fatal("3rd request allowed inside window")
	}

	clock.advance(61 * time.Second)
	if d := l.Allow("tiles", "alice"); !d.Allowed {
		t.Error("request denied after window expired")
	}
}

func TestRetryAfterReflectsOldestTimestamp(t *testing.T) {
	l, clock := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("tiles", "alice")
	clock.advance(20 * time.Second)

	d := l.Allow("tiles", "alice")
	if d.Allowed {
		t.Fatal("request allowed, want denied")
	}
	if d.RetryAfter != 40*time.Second {
		t.Errorf("RetryAfter = %v, want 40s", d.RetryAfter)
	}
}

func TestBlockDuration(t *testing.T) {
	l, clock := newTestLimiter(map[string]Policy{
		"analysis": {MaxRequests: 1, Window: time.Minute, BlockFor: 5 * time.Minute},
	})

	l.Allow("analysis", "carol")
	d := l.Allow("analysis", "carol")
	if d.Allowed {
		t.Fatal("over-limit request allowed")
	}
	if d.RetryAfter != 5*time.Minute {
		t.Errorf("RetryAfter = %v, want 5m block", d.RetryAfter)
	}

	// Window has passed but the block still holds.
	clock.advance(2 * time.Minute)
	if d := l.Allow("analysis", "carol"); d.Allowed {
		t.Error("request allowed while blocked")
	}

	clock.advance(4 * time.Minute)
	if d := l.Allow("analysis", "carol"); !d.Allowed {
		t.Error("request denied after block expired")
	}
}

func TestResetClearsBlock(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"analysis": {MaxRequests: 1, Window: time.Minute, BlockFor: 5 * time.Minute},
	})

	l.Allow("analysis", "carol")
	if d := l.Allow("analysis", "carol"); d.Allowed {
		t.Fatal("over-limit request allowed")
	}

	l.Reset("analysis", "carol")
	if d := l.Allow("analysis", "carol"); !d.Allowed {
		t.Error("request denied after reset")
	}
}

func TestRemainingCountsDown(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 3, Window: time.Minute},
	})

	for want := 2; want >= 0; want-- {
		d := l.Allow("tiles", "alice")
		if !d.Allowed || d.Remaining != want {
			t.Errorf("Remaining = %d (allowed %v), want %d", d.Remaining, d.Allowed, want)
		}
	}
}

func TestCallersIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("tiles", "alice")
	if d := l.Allow("tiles", "bob"); !d.Allowed {
		t.Error("bob denied by alice's usage")
	}
}

func TestServicesIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{
		"tiles":    {MaxRequests: 1, Window: time.Minute},
		"analysis": {MaxRequests: 1, Window: time.Minute},
	})

	l.Allow("tiles", "alice")
	if d := l.Allow("analysis", "alice"); !d.Allowed {
		t.Error("analysis denied by tiles usage")
	}
}

func TestUnknownServiceAllowed(t *testing.T) {
	l, _ := newTestLimiter(map[string]Policy{})
	if d := l.Allow("nonexistent", "alice"); !d.Allowed {
		t.Error("unknown service should not be limited")
	}
}

func TestCleanupDropsStaleEntries(t *testing.T) {
	l, clock := newTestLimiter(map[string]Policy{
		"tiles": {MaxRequests: 5, Window: time.Minute},
	})

	l.Allow("tiles", "alice")
	l.Allow("tiles", "bob")
	l.mu.Lock()
	if len(l.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(l.entries))
	}
	l.mu.Unlock()

	// Past 2x window and past the cleanup interval.
	clock.advance(3 * time.Minute)
	l.Allow("tiles", "carol")

	l.mu.Lock()
	n := len(l.entries)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("entries after cleanup = %d, want 1 (carol only)", n)
	}
}
