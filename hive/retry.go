package hive

import (
	"context"
	"math"
	"time"
)

// Clock abstracts time so the scheduler never calls wall-clock now for
// ordering decisions. Sleep must be cancellable: it returns
// early with an error when ctx is done.
type Clock interface {
	NowNanoseconds() int64
	Sleep(ctx context.Context, nanoseconds int64) error
}

// systemClock is the default production Clock, used when no Clock is
// injected. Determinism tests always inject a fake.
type systemClock struct{}

// SystemClock returns the default real-time Clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) NowNanoseconds() int64 { return time.Now().UnixNano() } // not called by scheduler logic

func (systemClock) Sleep(ctx context.Context, nanoseconds int64) error {
	if nanoseconds <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(nanoseconds))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy describes a node's retry behavior : exponential
// backoff with NO jitter. delay before attempt k+1 after a failing attempt k
// is min(maxNs, floor(initialNs * factor^(k-1))).
type RetryPolicy struct {
	InitialNs int64
	Factor float64
	MaxAttempts int
	MaxNs int64
	// Retryable reports whether err should be retried; nil means every error
	// (other than cancellation) is retryable.
	Retryable func(err error) bool
}

// Validate checks the policy's declared minima.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return newErr(KindInvalidRunOptions, "retry policy maxAttempts must be >= 1")
	}
	if p.InitialNs < 0 {
		return newErr(KindInvalidRunOptions, "retry policy initialNs must be >= 0")
	}
	if p.MaxNs < 0 {
		return newErr(KindInvalidRunOptions, "retry policy maxNs must be >= 0")
	}
	if math.IsNaN(p.Factor) || math.IsInf(p.Factor, 0) || p.Factor < 1.0 {
		return newErr(KindInvalidRunOptions, "retry policy factor must be finite and >= 1.0")
	}
	return nil
}

func (p RetryPolicy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// computeBackoffNs is the normative, jitter-free backoff formula :
// delay before attempt k+1 after failing attempt k.
func computeBackoffNs(p RetryPolicy, failedAttempt int) int64 {
	if failedAttempt < 1 {
 failedAttempt = 1
	}
	delay := float64(p.InitialNs) * math.Pow(p.Factor, float64(failedAttempt-1))
	d := int64(math.Floor(delay))
	if d > p.MaxNs {
 d = p.MaxNs
	}
	if d < 0 {
 d = 0
	}
	return d
}
