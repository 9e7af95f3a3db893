package quillsign

import (
	"fmt"
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration. A zero value field
// falls back to its default.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Default 5.
	FailureThreshold int
	// OpenTimeout is how long an open circuit rejects calls before letting a
	// trial request through. Default 30s.
	OpenTimeout time.Duration
	// SuccessThreshold is the number of consecutive half-open successes that
	// close the circuit. Default 2.
	SuccessThreshold int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	return c
}

// breakerCore is the pure state of a breaker. All transitions go through
// advance so the state machine is testable without any network mocking.
type breakerCore struct {
	state     BreakerState
	failures  int
	successes int
	openUntil time.Time
}

type breakerEvent int

const (
	eventAttempt breakerEvent = iota
	eventSuccess
	eventFailure
)

// advance applies one event to the breaker state and returns the next state.
// An open circuit crosses to half-open on the first attempt at or after
// openUntil, never spontaneously.
func advance(core breakerCore, cfg BreakerConfig, ev breakerEvent, now time.Time) breakerCore {
	switch ev {
	case eventAttempt:
		if core.state == BreakerOpen && !now.Before(core.openUntil) {
			core.state = BreakerHalfOpen
			core.successes = 0
		}
	case eventSuccess:
		switch core.state {
		case BreakerClosed:
			core.failures = 0
		case BreakerHalfOpen:
			core.successes++
			if core.successes >= cfg.SuccessThreshold {
				core = breakerCore{state: BreakerClosed}
			}
		}
	case eventFailure:
		switch core.state {
		case BreakerClosed:
			core.failures++
			if core.failures >= cfg.FailureThreshold {
				core.state = BreakerOpen
				core.openUntil = now.Add(cfg.OpenTimeout)
			}
		case BreakerHalfOpen:
			core.state = BreakerOpen
			core.successes = 0
			core.openUntil = now.Add(cfg.OpenTimeout)
		}
	}
	return core
}

// CircuitBreaker guards one logical endpoint group. Safe for concurrent use.
type CircuitBreaker struct {
	mu   sync.Mutex
	cfg  BreakerConfig
	core breakerCore
	now  func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg: cfg.withDefaults(),
		now: time.Now,
	}
}

// Allow reports whether a call may proceed. When blocked, retryIn is the
// time remaining until the next trial request is let through.
func (cb *CircuitBreaker) Allow() (ok bool, retryIn time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.core = advance(cb.core, cb.cfg, eventAttempt, now)
	if cb.core.state == BreakerOpen {
		return false, cb.core.openUntil.Sub(now)
	}
	return true, 0
}

// RecordSuccess records a successful call outcome.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.core = advance(cb.core, cb.cfg, eventSuccess, cb.now())
}

// RecordFailure records a failed call outcome.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.core = advance(cb.core, cb.cfg, eventFailure, cb.now())
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.core.state
}

// CircuitOpenError is raised when a call is blocked by an open circuit. It
// is deliberately not an APIError so callers can tell "the network said no"
// from "we refused to ask". Matches ErrCircuitOpen via errors.Is.
type CircuitOpenError struct {
	Group   string
	RetryIn time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("quillsign: circuit open for %q (retry in %v)", e.Group, e.RetryIn)
}

// Is implements errors.Is against the ErrCircuitOpen sentinel.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// breakerRegistry keeps one breaker per endpoint group so an outage in one
// resource family does not trip calls to the others.
type breakerRegistry struct {
	mu     sync.RWMutex
	cfg    BreakerConfig
	groups map[string]*CircuitBreaker
	now    func() time.Time
}

func newBreakerRegistry(cfg BreakerConfig, now func() time.Time) *breakerRegistry {
	if now == nil {
		now = time.Now
	}
	return &breakerRegistry{
		cfg:    cfg.withDefaults(),
		groups: make(map[string]*CircuitBreaker),
		now:    now,
	}
}

// forPath returns the breaker guarding the endpoint group of path,
// creating it on first use.
func (r *breakerRegistry) forPath(path string) *CircuitBreaker {
	group := endpointGroup(path)

	r.mu.RLock()
	cb, ok := r.groups[group]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.groups[group]; ok {
		return cb
	}
	cb = &CircuitBreaker{cfg: r.cfg, now: r.now}
	r.groups[group] = cb
	return cb
}

// endpointGroup maps a request path to its logical endpoint group: the
// first path segment, e.g. "/envelopes/42/documents" -> "envelopes".
func endpointGroup(path string) string {
	segs := splitPath(path)
	if len(segs) == 0 {
		return "/"
	}
	return segs[0]
}
