package quillsign

import (
	"testing"
	"time"
)

func noJitterPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Jitter = 0
	return p
}

func TestRetryPolicyBackoffSchedule(t *testing.T) {
	policy := noJitterPolicy()
	now := time.Unix(1700000000, 0)
	serverErr := &APIError{Kind: ErrorKindServer, StatusCode: 503}

	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
	}
	for attempt, wantDelay := range want {
		delay, again := policy.Next(serverErr, attempt, now)
		if !again {
			t.Fatalf("attempt %d: expected retry", attempt)
		}
		if delay != wantDelay {
			t.Errorf("attempt %d: delay = %v, want %v", attempt, delay, wantDelay)
		}
	}

	// Retries are exhausted at MaxRetries.
	if _, again := policy.Next(serverErr, 3, now); again {
		t.Error("attempt 3: expected exhaustion with MaxRetries=3")
	}
}

func TestRetryPolicyNonRetryableAbortsImmediately(t *testing.T) {
	policy := noJitterPolicy()
	now := time.Unix(1700000000, 0)

	for _, kind := range []ErrorKind{
		ErrorKindValidation,
		ErrorKindAuthentication,
		ErrorKindAuthorization,
		ErrorKindNotFound,
		ErrorKindUnknown,
	} {
		if _, again := policy.Next(&APIError{Kind: kind}, 0, now); again {
			t.Errorf("kind %s: expected no retry", kind)
		}
	}

	if _, again := policy.Next(nil, 0, now); again {
		t.Error("nil error: expected no retry")
	}
}

func TestRetryPolicyRateLimitWaitsForReset(t *testing.T) {
	policy := noJitterPolicy()
	now := time.Unix(1700000000, 0)

	rateLimited := &APIError{
		Kind:       ErrorKindRateLimit,
		StatusCode: 429,
		RateLimit:  &RateLimitInfo{Reset: now.Add(7 * time.Second)},
	}

	// The server-declared reset takes precedence over exponential backoff.
	delay, again := policy.Next(rateLimited, 0, now)
	if !again {
		t.Fatal("expected retry")
	}
	if delay != 7*time.Second {
		t.Errorf("delay = %v, want 7s (reset instant)", delay)
	}
}

func TestRetryPolicyRateLimitResetInPast(t *testing.T) {
	policy := noJitterPolicy()
	now := time.Unix(1700000000, 0)

	rateLimited := &APIError{
		Kind:      ErrorKindRateLimit,
		RateLimit: &RateLimitInfo{Reset: now.Add(-5 * time.Second)},
	}
	delay, again := policy.Next(rateLimited, 0, now)
	if !again {
		t.Fatal("expected retry")
	}
	if delay != 0 {
		t.Errorf("delay = %v, want 0 for a reset already passed", delay)
	}
}

func TestRetryPolicyRateLimitWithoutResetUsesBackoff(t *testing.T) {
	policy := noJitterPolicy()
	now := time.Unix(1700000000, 0)

	rateLimited := &APIError{Kind: ErrorKindRateLimit, StatusCode: 429}
	delay, again := policy.Next(rateLimited, 0, now)
	if !again {
		t.Fatal("expected retry")
	}
	if delay != 500*time.Millisecond {
		t.Errorf("delay = %v, want 500ms backoff fallback", delay)
	}
}

func TestRetryPolicyZeroMaxRetries(t *testing.T) {
	policy := noJitterPolicy()
	policy.MaxRetries = 0
	now := time.Unix(1700000000, 0)

	if _, again := policy.Next(&APIError{Kind: ErrorKindServer}, 0, now); again {
		t.Error("MaxRetries=0: expected no retry at all")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", p.InitialDelay)
	}
	if p.MaxDelay != 30*time.Second {
		t.Errorf("MaxDelay = %v, want 30s", p.MaxDelay)
	}
	if p.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", p.Multiplier)
	}
}
