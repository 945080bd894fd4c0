package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestInProcessLimiter_RefillsOverTime(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewInProcessLimiter(map[string]TierConfig{"standard": {RequestsPerMinute: 60}}, 0)
	l.now = clock.Now

	id := &Identity{Subject: "host-a", ServiceTier: "standard"}
	for i := 0; i < 60; i++ {
		if err := l.Allow(context.Background(), id); err != nil {
			t.Fatalf("request %d rejected inside the burst: %v", i+1, err)
		}
	}
	if err := l.Allow(context.Background(), id); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("expected ErrTooManyRequests, got %v", err)
	}

	clock.now = clock.now.Add(2 * time.Second)
	if err := l.Allow(context.Background(), id); err != nil {
		t.Errorf("bucket should refill one token per second: %v", err)
	}
}

func TestInProcessLimiter_Tiers(t *testing.T) {
	l := NewInProcessLimiter(map[string]TierConfig{
		"limited":   {RequestsPerMinute: 1},
		"unlimited": {RequestsPerMinute: 0},
	}, 2)
	ctx := context.Background()

	limited := &Identity{Subject: "a", ServiceTier: "limited"}
	_ = l.Allow(ctx, limited)
	if l.Allow(ctx, limited) == nil {
		t.Error("limited tier should reject the second request")
	}

	// Another subject has its own bucket.
	if err := l.Allow(ctx, &Identity{Subject: "b", ServiceTier: "limited"}); err != nil {
		t.Errorf("other subject rejected: %v", err)
	}

	unlimited := &Identity{Subject: "a", ServiceTier: "unlimited"}
	for i := 0; i < 10; i++ {
		if err := l.Allow(ctx, unlimited); err != nil {
			t.Fatalf("unlimited tier rejected: %v", err)
		}
	}

	// Unknown and empty tiers use the default RPM.
	def := &Identity{Subject: "c"}
	_ = l.Allow(ctx, def)
	_ = l.Allow(ctx, def)
	if l.Allow(ctx, def) == nil {
		t.Error("default tier should reject the third request")
	}
}

func TestInProcessLimiter_SweepsIdleBuckets(t *testing.T) {
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewInProcessLimiter(nil, 10)
	l.now = clock.Now

	_ = l.Allow(context.Background(), &Identity{Subject: "old"})
	clock.now = clock.now.Add(idleTTL + time.Second)
	_ = l.Allow(context.Background(), &Identity{Subject: "new"})

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["old:default"]; ok {
		t.Error("idle bucket should have been swept")
	}
	if len(l.buckets) != 1 {
		t.Errorf("buckets = %d, want 1", len(l.buckets))
	}
}
