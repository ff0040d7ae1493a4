package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCache_ClaimReleaseExpire(t *testing.T) {
	cache := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := cache.SetIdempotency(ctx, "k"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if ok, _ := cache.SetIdempotency(ctx, "k"); ok {
		t.Error("expected second claim to fail")
	}

	cache.ReleaseIdempotency(ctx, "k")
	if ok, _ := cache.SetIdempotency(ctx, "k"); !ok {
		t.Error("expected claim after release to succeed")
	}

	now = now.Add(idempotencyKeyTTL + time.Second)
	if ok, _ := cache.SetIdempotency(ctx, "k"); !ok {
		t.Error("expected claim after expiry to succeed")
	}
}
