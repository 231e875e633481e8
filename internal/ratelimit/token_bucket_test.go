package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t), 2, 1, time.Minute)

	allowed, _, err := bucket.Allow(ctx, "gemini:submit")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.Allow(ctx, "gemini:submit")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _, _ = bucket.Allow(ctx, "gemini:submit")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}
	allowed, _, _ = bucket.Allow(ctx, "other")
	if !allowed {
		t.Fatalf("expected separate key to have its own bucket")
	}
}

func TestGateWaitsForRefill(t *testing.T) {
	bucket := NewTokenBucket(newTestClient(t), 1, 20, time.Minute)
	gate := bucket.Gate("gemini:submit")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	start := time.Now()
	if err := gate.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait for refill, waited %s", elapsed)
	}
}

func TestGateWaitHonoursContext(t *testing.T) {
	bucket := NewTokenBucket(newTestClient(t), 1, 0, time.Minute)
	gate := bucket.Gate("k")
	gate.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := gate.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
