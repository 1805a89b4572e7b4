package resilience

import (
	"context"
	"testing"

	"golang.org/x/time/rate"
)

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter("test", 4, 1)

	for i := 0; i < 20; i++ {
		a.OnSuccess()
	}
	if got := a.Limit(); got != rate.Limit(8) {
		t.Errorf("expected rate capped at 8, got %v", got)
	}

	for i := 0; i < 20; i++ {
		a.OnRateLimit()
	}
	if got := a.Limit(); got != rate.Limit(1) {
		t.Errorf("expected rate floored at 1, got %v", got)
	}
}

func TestAdaptiveLimiter_HalvesOnRateLimit(t *testing.T) {
	a := NewAdaptiveLimiter("test", 4, 1)
	a.OnRateLimit()
	if got := a.Limit(); got != rate.Limit(2) {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestAdaptiveLimiter_NilIsNoop(t *testing.T) {
	var a *AdaptiveLimiter
	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.OnSuccess()
	a.OnRateLimit()
}

func TestAdaptiveLimiter_WaitHonorsContext(t *testing.T) {
	a := NewAdaptiveLimiter("test", 0.001, 1)
	_ = a.Wait(context.Background()) // consume burst

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
