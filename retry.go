package quillsign

import (
	"time"

	"github.com/quillsign/quillsign-go/internal/backoff"
)

// RetryPolicy decides whether and when a failed call is retried. The
// decision is pure data-in/data-out: it inspects only the classified error,
// the attempt counter, and the clock.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// Jitter is the random spread (0..1) added to each delay.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Next reports whether the zero-based attempt should be retried and the
// delay to wait first. Non-retryable errors abort immediately regardless of
// remaining attempts. A rate-limited call with a server-declared reset waits
// until the reset instant instead of guessing with backoff.
func (p RetryPolicy) Next(apiErr *APIError, attempt int, now time.Time) (time.Duration, bool) {
	if apiErr == nil || !apiErr.Retryable() {
		return 0, false
	}
	if attempt >= p.MaxRetries {
		return 0, false
	}

	if apiErr.Kind == ErrorKindRateLimit && apiErr.RateLimit != nil && !apiErr.RateLimit.Reset.IsZero() {
		wait := apiErr.RateLimit.Reset.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return backoff.Delay(attempt, p.InitialDelay, p.MaxDelay, p.Multiplier, p.Jitter), true
}
