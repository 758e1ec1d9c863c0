package crawler

import (
	"context"
	"testing"
	"time"
)

func TestHostLimitersFirstCallProceedsImmediately(t *testing.T) {
	t.Parallel()
	limiters := newHostLimiters(2)
	start := time.Now()
	if err := limiters.wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first call took %v, want near-immediate", elapsed)
	}
}

func TestHostLimitersSeparatePerHost(t *testing.T) {
	t.Parallel()
	limiters := newHostLimiters(1)
	ctx := context.Background()
	if err := limiters.wait(ctx, "a.example.com"); err != nil {
		t.Fatalf("wait a: %v", err)
	}

	start := time.Now()
	if err := limiters.wait(ctx, "b.example.com"); err != nil {
		t.Fatalf("wait b: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("different host waited %v, want independent limiter", elapsed)
	}
}

func TestHostLimitersThrottlesSecondCallOnSameHost(t *testing.T) {
	t.Parallel()
	limiters := newHostLimiters(10) // 1/rps = 100ms
	ctx := context.Background()
	if err := limiters.wait(ctx, "example.com"); err != nil {
		t.Fatalf("wait 1: %v", err)
	}
	start := time.Now()
	if err := limiters.wait(ctx, "example.com"); err != nil {
		t.Fatalf("wait 2: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second call on same host took %v, want throttled wait", elapsed)
	}
}

func TestHostLimitersRespectsCancellation(t *testing.T) {
	t.Parallel()
	limiters := newHostLimiters(0.1) // 1/rps = 10s
	ctx := context.Background()
	if err := limiters.wait(ctx, "slow.example.com"); err != nil {
		t.Fatalf("wait 1: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiters.wait(cancelCtx, "slow.example.com"); err == nil {
		t.Error("expected context deadline to cancel a long wait")
	}
}
