// Package resilience wraps calls to the model collaborator with a retry
// policy and transient-error classification. Permanent failures surface
// immediately; transient ones are retried with exponential backoff and
// jitter until the policy's attempt budget runs out.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls how a call is retried. Start from DefaultPolicy and
// override what the caller needs.
type Policy struct {
	// Attempts is the total attempt budget including the first call.
	// 1 disables retries.
	Attempts int

	// BaseDelay is the sleep before the first retry; each further retry
	// doubles it, capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Jitter randomizes each delay by up to the given fraction in either
	// direction, so concurrent workers do not retry in lockstep.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Nil means IsTransient.
	Retryable func(error) bool

	// OnRetry runs before each retry sleep with the number of the attempt
	// that just failed and its error.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the retry policy used for model API calls.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  30 * time.Second,
		Jitter:    0.25,
	}
}

// Do runs fn under the policy and returns the value of the first successful
// attempt. A permanent error or an expired context stops retrying
// immediately; once the attempt budget is spent the last error is returned
// with the zero value.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == p.Attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// delay computes the backoff before the retry following the given attempt:
// BaseDelay doubled per prior retry, capped at MaxDelay, then jittered.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) + (rand.Float64()*2-1)*spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// RetryLogger returns an OnRetry callback logging each retry of the named
// operation.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
