package quillsign

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.quillsign.com/v1"

// Client is a QuillSign API client. Every call goes through the request
// pipeline, which layers conditional caching, token lifecycle management,
// retries with backoff, and per-endpoint-group circuit breaking around the
// underlying HTTP transport. Each Client owns its cache and token state;
// multiple clients in one process never interfere.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	retry       RetryPolicy
	breakerCfg  BreakerConfig
	refreshSkew time.Duration

	cacheDisabled bool
	middleware    []Middleware
	metrics       *MetricsCollector
	logger        Logger
	debug         *DebugConfig
	userAgent     string

	pipeline *Pipeline
	tokens   *TokenManager
	cache    *CacheStore

	envelopes *EnvelopesService
	documents *DocumentsService
	signers   *SignersService
	templates *TemplatesService
	webhooks  *WebhooksService
}

// New creates an organization client authenticated with a long-lived API
// token. API tokens never expire by schedule and have no refresh step.
func New(apiToken string, opts ...Option) (*Client, error) {
	if apiToken == "" {
		return nil, ErrNotAuthenticated
	}
	return build(TokenKindOrganization, TokenPair{AccessToken: apiToken}, opts)
}

// NewWithSession creates an organization client from a JWT session,
// typically obtained via Login. The pair may carry a refresh token.
func NewWithSession(session TokenPair, opts ...Option) (*Client, error) {
	if session.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}
	return build(TokenKindOrganization, session, opts)
}

// NewSignerSession creates a client scoped to one signer session, from the
// short-lived token pair issued alongside a signing URL. The refresh token
// rotates on every refresh.
func NewSignerSession(session TokenPair, opts ...Option) (*Client, error) {
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil, ErrNotAuthenticated
	}
	return build(TokenKindSignerSession, session, opts)
}

// Login exchanges organization credentials for a JWT session and returns a
// client holding it.
func Login(ctx context.Context, email, password string, opts ...Option) (*Client, error) {
	// Assemble configuration first so base URL / transport options apply to
	// the login call itself.
	cfg := newDefaults()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	auth := &authAPI{baseURL: cfg.baseURL, httpClient: cfg.httpClient, userAgent: cfg.userAgent}
	pair, err := auth.login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return NewWithSession(*pair, opts...)
}

// newDefaults returns a client carrying only configuration defaults.
func newDefaults() *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		timeout:     30 * time.Second,
		retry:       DefaultRetryPolicy(),
		breakerCfg:  BreakerConfig{},
		refreshSkew: 2 * time.Minute,
		userAgent:   userAgent(),
	}
}

func build(kind TokenKind, initial TokenPair, opts []Option) (*Client, error) {
	c := newDefaults()
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	auth := &authAPI{baseURL: c.baseURL, httpClient: c.httpClient, userAgent: c.userAgent}

	c.tokens = NewTokenManager(TokenManagerConfig{
		Kind:           kind,
		Initial:        initial,
		Refresher:      auth,
		RefreshSkew:    c.refreshSkew,
		RefreshTimeout: c.timeout,
		Logger:         c.logger,
		Debug:          c.debug,
		Metrics:        c.metrics,
	})

	if !c.cacheDisabled {
		c.cache = NewCacheStore()
	}

	c.pipeline = &Pipeline{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		timeout:    c.timeout,
		tokens:     c.tokens,
		cache:      c.cache,
		retry:      c.retry,
		breakers:   newBreakerRegistry(c.breakerCfg, time.Now),
		middleware: c.middleware,
		metrics:    c.metrics,
		logger:     c.logger,
		debug:      c.debug,
		userAgent:  c.userAgent,
		now:        time.Now,
		sleep:      sleepContext,
	}

	c.envelopes = &EnvelopesService{p: c.pipeline}
	c.documents = &DocumentsService{p: c.pipeline}
	c.signers = &SignersService{p: c.pipeline}
	c.templates = &TemplatesService{p: c.pipeline}
	c.webhooks = &WebhooksService{p: c.pipeline}

	return c, nil
}

// Do executes a raw API call through the full pipeline. Escape hatch for
// endpoints without a dedicated wrapper.
func (c *Client) Do(ctx context.Context, r *Request) (*Response, error) {
	return c.pipeline.Do(ctx, r)
}

// Envelopes returns the envelope resource wrapper.
func (c *Client) Envelopes() *EnvelopesService { return c.envelopes }

// Documents returns the document resource wrapper.
func (c *Client) Documents() *DocumentsService { return c.documents }

// Signers returns the signer resource wrapper.
func (c *Client) Signers() *SignersService { return c.signers }

// Templates returns the template resource wrapper.
func (c *Client) Templates() *TemplatesService { return c.templates }

// Webhooks returns the webhook resource wrapper.
func (c *Client) Webhooks() *WebhooksService { return c.webhooks }

// TokenKind returns the credential lifecycle this client was built with.
func (c *Client) TokenKind() TokenKind {
	return c.tokens.Kind()
}

// Logout revokes the session server-side, clears the credential state, and
// drops all cached responses (they may be authorization-scoped). The client
// is unusable afterwards.
func (c *Client) Logout(ctx context.Context) error {
	err := c.tokens.Revoke(ctx)
	if c.cache != nil {
		c.cache.Clear()
		c.metrics.RecordCacheSize(0)
	}
	// A session the server already expired is a successful logout.
	if err != nil && errors.Is(err, ErrSessionExpired) {
		return nil
	}
	return err
}
