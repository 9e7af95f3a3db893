package quillsign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TokenKind distinguishes the two credential lifecycles a client can hold.
type TokenKind int

const (
	// TokenKindOrganization is an organization credential: either a
	// long-lived API token (no scheduled expiry, no refresh) or a JWT with an
	// optional refresh token. The backend disambiguates the format; the
	// client forwards whichever string it holds as a bearer credential.
	TokenKindOrganization TokenKind = iota
	// TokenKindSignerSession is a short-lived signer session with a rotating
	// refresh token issued alongside a signing URL.
	TokenKindSignerSession
)

func (k TokenKind) String() string {
	switch k {
	case TokenKindOrganization:
		return "organization"
	case TokenKindSignerSession:
		return "signer_session"
	default:
		return "unknown"
	}
}

// TokenPair is an access token with its optional refresh token. Expiry
// instants are always the server-issued values, never locally extended. A
// zero AccessExpiresAt means the token never expires by schedule.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenRefresher performs the wire calls of the token lifecycle. Refresh
// must return the full rotated pair; the server rejects reuse of an
// already-rotated refresh token with an authentication error.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
}

type tokenState int

const (
	tokenStateUnset tokenState = iota
	tokenStateAuthenticated
	tokenStateTerminal
)

// refreshCall memoizes one in-flight refresh. Waiters block on done and all
// observe the same result; the memo is cleared the moment the call settles.
type refreshCall struct {
	done chan struct{}
	pair *TokenPair
	err  error
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	Kind    TokenKind
	Initial TokenPair
	// Refresher is required when Initial carries a refresh token.
	Refresher TokenRefresher
	// RefreshSkew is how long before access expiry a refresh is triggered.
	// Default 120s.
	RefreshSkew time.Duration
	// RefreshTimeout bounds the detached refresh call. Default 30s.
	RefreshTimeout time.Duration

	Logger  Logger
	Debug   *DebugConfig
	Metrics *MetricsCollector
}

// TokenManager holds the credential state for one logical session and
// performs lazy refresh. At most one refresh call is ever in flight per
// instance; concurrent callers share its result. Instances are never shared
// across clients.
type TokenManager struct {
	mu               sync.Mutex
	kind             TokenKind
	state            tokenState
	access           string
	accessExpiresAt  time.Time
	refresh          string
	refreshExpiresAt time.Time
	inflight         *refreshCall

	refresher      TokenRefresher
	skew           time.Duration
	refreshTimeout time.Duration

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	now func() time.Time
}

// NewTokenManager creates a manager holding the given initial credentials.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	if cfg.RefreshSkew == 0 {
		cfg.RefreshSkew = 2 * time.Minute
	}
	if cfg.RefreshTimeout == 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}

	tm := &TokenManager{
		kind:             cfg.Kind,
		access:           cfg.Initial.AccessToken,
		accessExpiresAt:  cfg.Initial.AccessExpiresAt,
		refresh:          cfg.Initial.RefreshToken,
		refreshExpiresAt: cfg.Initial.RefreshExpiresAt,
		refresher:        cfg.Refresher,
		skew:             cfg.RefreshSkew,
		refreshTimeout:   cfg.RefreshTimeout,
		logger:           cfg.Logger,
		debug:            cfg.Debug,
		metrics:          cfg.Metrics,
		now:              time.Now,
	}
	if tm.access != "" {
		tm.state = tokenStateAuthenticated
	}
	return tm
}

// Kind returns the credential lifecycle of this manager.
func (tm *TokenManager) Kind() TokenKind {
	return tm.kind
}

// Authenticated reports whether the manager currently holds a usable
// credential state (it may still need a refresh on next use).
func (tm *TokenManager) Authenticated() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.state == tokenStateAuthenticated
}

// Token returns a bearer token valid for at least the refresh skew,
// refreshing lazily when needed. If a refresh is already pending the caller
// waits on it rather than issuing a second refresh call.
func (tm *TokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.Lock()

	switch tm.state {
	case tokenStateUnset:
		tm.mu.Unlock()
		return "", ErrNotAuthenticated
	case tokenStateTerminal:
		tm.mu.Unlock()
		return "", ErrSessionExpired
	}

	now := tm.now()

	// Long-lived API tokens have no scheduled expiry and no refresh step.
	if tm.accessExpiresAt.IsZero() || now.Before(tm.accessExpiresAt.Add(-tm.skew)) {
		token := tm.access
		tm.mu.Unlock()
		return token, nil
	}

	if tm.refresh == "" || tm.refresher == nil ||
		(!tm.refreshExpiresAt.IsZero() && !now.Before(tm.refreshExpiresAt)) {
		tm.terminateLocked()
		tm.mu.Unlock()
		tm.metrics.RecordTokenRefresh("terminal")
		return "", ErrSessionExpired
	}

	call := tm.inflight
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		tm.inflight = call
		go tm.runRefresh(call, tm.refresh)

		if tm.debug != nil && tm.debug.Enabled && tm.debug.LogTokens && tm.logger != nil {
			tm.logger.Debug("Token refresh started", "kind", tm.kind.String())
		}
	}
	tm.mu.Unlock()

	select {
	case <-call.done:
		if call.err != nil {
			return "", call.err
		}
		return call.pair.AccessToken, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runRefresh executes the memoized refresh call. It runs on a detached
// context bounded by the refresh timeout so one canceled waiter cannot
// poison the result shared by the others.
func (tm *TokenManager) runRefresh(call *refreshCall, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), tm.refreshTimeout)
	defer cancel()

	pair, err := tm.refresher.Refresh(ctx, refreshToken)

	tm.mu.Lock()
	tm.inflight = nil

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == ErrorKindAuthentication {
			// Expired or revoked refresh token. Terminal: the caller must
			// re-establish credentials.
			tm.terminateLocked()
			err = fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
			tm.metrics.RecordTokenRefresh("terminal")
		} else {
			tm.metrics.RecordTokenRefresh("failure")
		}
		if tm.debug != nil && tm.debug.Enabled && tm.debug.LogTokens && tm.logger != nil {
			tm.logger.Warn("Token refresh failed", "kind", tm.kind.String(), "error", err.Error())
		}
	} else {
		// Rotation: the old refresh token is invalid the instant the new
		// pair is issued.
		tm.access = pair.AccessToken
		tm.accessExpiresAt = pair.AccessExpiresAt
		if pair.RefreshToken != "" {
			tm.refresh = pair.RefreshToken
			tm.refreshExpiresAt = pair.RefreshExpiresAt
		}
		tm.metrics.RecordTokenRefresh("success")

		if tm.debug != nil && tm.debug.Enabled && tm.debug.LogTokens && tm.logger != nil {
			tm.logger.Debug("Token refresh succeeded", "kind", tm.kind.String(), "expiresAt", pair.AccessExpiresAt)
		}
	}

	call.pair = pair
	call.err = err
	tm.mu.Unlock()

	close(call.done)
}

// Revoke clears both tokens immediately and moves the session to its
// terminal state, independent of expiry timers. The server-side revoke call
// is best effort; local state is cleared regardless of its outcome.
func (tm *TokenManager) Revoke(ctx context.Context) error {
	tm.mu.Lock()
	refreshToken := tm.refresh
	tm.terminateLocked()
	tm.mu.Unlock()

	if refreshToken != "" && tm.refresher != nil {
		return tm.refresher.Revoke(ctx, refreshToken)
	}
	return nil
}

// terminateLocked clears credentials and enters the terminal state.
// Callers must hold tm.mu.
func (tm *TokenManager) terminateLocked() {
	tm.access = ""
	tm.accessExpiresAt = time.Time{}
	tm.refresh = ""
	tm.refreshExpiresAt = time.Time{}
	tm.state = tokenStateTerminal
}
