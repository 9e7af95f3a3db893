package quillsign

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithMaxRetries sets the maximum number of retry attempts, keeping the
// rest of the policy.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retry.MaxRetries = n
	}
}

// WithCircuitBreaker sets the per-endpoint-group circuit breaker
// configuration.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		c.breakerCfg = cfg
	}
}

// WithCacheDisabled turns off conditional response caching.
func WithCacheDisabled() Option {
	return func(c *Client) {
		c.cacheDisabled = true
	}
}

// WithRefreshSkew sets how long before access-token expiry a refresh is
// triggered.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = d
	}
}

// WithMiddleware appends middleware to the transport chain.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(mc *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = mc
	}
}

// WithLogger sets the logger for debug output.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) {
		c.debug = cfg
	}
}

// WithRequestIDGenerator sets a custom per-call correlation ID generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// validate checks the assembled configuration.
func (c *Client) validate() error {
	var problems []string

	problems = append(problems, c.validateHTTPConfig()...)
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateBreakerConfig()...)
	problems = append(problems, c.validateDebugConfig()...)

	if len(problems) > 0 {
		return fmt.Errorf("quillsign: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Client) validateHTTPConfig() []string {
	var problems []string

	if c.baseURL == "" {
		problems = append(problems, "base URL must not be empty")
	}
	if c.httpClient == nil {
		problems = append(problems, "HTTP client must not be nil")
	}
	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}
	return problems
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.retry.MaxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.retry.InitialDelay <= 0 {
		problems = append(problems, "initialDelay must be positive")
	}
	if c.retry.MaxDelay < c.retry.InitialDelay {
		problems = append(problems, "maxDelay must be greater than or equal to initialDelay")
	}
	if c.retry.Multiplier <= 0 {
		problems = append(problems, "backoff multiplier must be positive")
	}
	if c.retry.Jitter < 0 || c.retry.Jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	return problems
}

func (c *Client) validateBreakerConfig() []string {
	var problems []string

	if c.breakerCfg.FailureThreshold < 0 {
		problems = append(problems, "breaker failureThreshold must be non-negative")
	}
	if c.breakerCfg.OpenTimeout < 0 {
		problems = append(problems, "breaker openTimeout must be non-negative")
	}
	if c.breakerCfg.SuccessThreshold < 0 {
		problems = append(problems, "breaker successThreshold must be non-negative")
	}
	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}
	return problems
}
