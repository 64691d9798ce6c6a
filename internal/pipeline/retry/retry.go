// Package retry implements the exponential-backoff-with-jitter policy and
// the transient/permanent error classification shared by the transcription
// and cleanup pipelines (spec.md §4.5). The per-provider in-flight
// semaphores live in the pipeline dispatchers, not here.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	registrystore "github.com/gaspermerela/journal-service-sub002/internal/registry/store"
)

// Policy is the retry schedule for one pipeline's provider calls.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	Jitter      float64
}

// Delay returns the backoff delay before attempt (1-indexed attempt number
// that just failed), jittered by ±Jitter of the base exponential delay.
func (p Policy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.Jitter > 0 {
		spread := base * p.Jitter
		base += (rand.Float64()*2 - 1) * spread
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// Classify maps a provider-call error onto the Transient/Permanent split
// spec.md §4.5 requires. Callers that already return a TransientError or
// PermanentError are passed through unchanged; context.DeadlineExceeded
// (the pipeline's own per-call timeout, spec.md §5) is treated as a
// transient timeout so it participates in the retry budget.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var transient *registrystore.TransientError
	var permanent *registrystore.PermanentError
	if errors.As(err, &transient) || errors.As(err, &permanent) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &registrystore.TransientError{Message: "provider call timed out", Cause: err}
	}
	// Unclassified provider errors default to permanent: an adapter that
	// hasn't opted into the transient/permanent split is assumed to be
	// reporting something the caller did wrong (bad credentials, malformed
	// input) rather than something retrying would fix.
	return &registrystore.PermanentError{Message: "provider call failed", Cause: err}
}

// IsTransient reports whether err (after Classify) should be retried.
func IsTransient(err error) bool {
	var transient *registrystore.TransientError
	return errors.As(err, &transient)
}

// Run executes fn up to policy.MaxAttempts times, sleeping Delay(attempt)
// between transient failures. It returns as soon as fn succeeds or fails
// permanently, or ctx is cancelled.
func Run(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		classified := Classify(err)
		lastErr = classified
		if !IsTransient(classified) || attempt == attempts {
			return classified
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
	return lastErr
}
