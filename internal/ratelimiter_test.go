package internal

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 5, 9, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(2, 10*time.Second)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatalf("first two hits should pass")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("third hit inside the window should be refused")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("other keys are independent")
	}

	now = now.Add(11 * time.Second)
	if !limiter.Allow("1.2.3.4") {
		t.Fatalf("hits should expire after the window")
	}

	now = now.Add(time.Minute)
	limiter.Sweep()
	if len(limiter.hits) != 0 {
		t.Fatalf("sweep should forget idle keys, have %d", len(limiter.hits))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("k") {
			t.Fatalf("disabled limiter refused hit %d", i)
		}
	}
}

func TestConnTracker(t *testing.T) {
	tracker := NewConnTracker(2)
	if !tracker.Acquire("a") || !tracker.Acquire("a") {
		t.Fatalf("expected two slots")
	}
	if tracker.Acquire("a") {
		t.Fatalf("third slot should be refused")
	}
	tracker.Release("a")
	if tracker.Open("a") != 1 || !tracker.Acquire("a") {
		t.Fatalf("release should free a slot")
	}
	tracker.Release("a")
	tracker.Release("a")
	tracker.Release("a")
	if tracker.Open("a") != 0 {
		t.Fatalf("extra releases must not go negative")
	}

	unlimited := NewConnTracker(0)
	for i := 0; i < 10; i++ {
		if !unlimited.Acquire("b") {
			t.Fatalf("unlimited tracker refused")
		}
	}
}
