package hive

import (
	"context"
	"testing"
	"time"
)

func TestComputeBackoffNsExponentialNoJitter(t *testing.T) {
	p := RetryPolicy{InitialNs: int64(100 * time.Millisecond), Factor: 2.0, MaxAttempts: 5, MaxNs: int64(10 * time.Second)}

	got := computeBackoffNs(p, 1)
	want := p.InitialNs
	if got != want {
 t.Fatalf("attempt 1 backoff: got %d want %d", got, want)
	}

	got = computeBackoffNs(p, 2)
	want = p.InitialNs * 2
	if got != want {
 t.Fatalf("attempt 2 backoff: got %d want %d", got, want)
	}

	got = computeBackoffNs(p, 3)
	want = p.InitialNs * 4
	if got != want {
 t.Fatalf("attempt 3 backoff: got %d want %d", got, want)
	}
}

func TestComputeBackoffNsCapsAtMax(t *testing.T) {
	p := RetryPolicy{InitialNs: int64(time.Second), Factor: 10.0, MaxAttempts: 5, MaxNs: int64(2 * time.Second)}
	got := computeBackoffNs(p, 4)
	if got != p.MaxNs {
 t.Fatalf("expected backoff capped at MaxNs=%d, got %d", p.MaxNs, got)
	}
}

func TestRetryPolicyShouldRetryDefaultsToTrue(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	if !p.shouldRetry(nil) {
 t.Fatalf("expected nil Retryable to retry everything")
	}
}

func TestRetryPolicyShouldRetryHonorsPredicate(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Retryable: func(err error) bool { return false }}
	if p.shouldRetry(nil) {
 t.Fatalf("expected predicate to veto retry")
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	bad := []RetryPolicy{
 {MaxAttempts: 0, Factor: 1.0},
 {MaxAttempts: 1, Factor: 0.5},
 {MaxAttempts: 1, Factor: 1.0, InitialNs: -1},
	}
	for i, p := range bad {
 if err := p.Validate(); err == nil {
 t.Fatalf("case %d: expected validation error for %+v", i, p)
 }
	}
	good := RetryPolicy{MaxAttempts: 1, Factor: 1.0}
	if err := good.Validate(); err != nil {
 t.Fatalf("expected valid policy to pass, got %v", err)
	}
}

func TestSystemClockSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SystemClock().Sleep(ctx, int64(time.Second)); err == nil {
 t.Fatalf("expected cancelled context to abort sleep immediately")
	}
}

func TestSystemClockSleepZeroReturnsImmediately(t *testing.T) {
	if err := SystemClock().Sleep(context.Background(), 0); err != nil {
 t.Fatalf("expected zero-duration sleep to succeed, got %v", err)
	}
}
