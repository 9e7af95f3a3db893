package quillsign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Request is one logical API call handed to the pipeline by a service
// wrapper (or any other caller).
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-marshaled once and replayed on every retry attempt.
	Body interface{}
	// NoCache bypasses conditional caching for a single GET.
	NoCache bool
}

// Response is the pipeline result for a call that reached a non-error
// status. A 304 revalidation is materialized from cache and is
// indistinguishable from a fresh 200 apart from FromCache.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FromCache  bool
}

// Middleware wraps the transport call for cross-cutting concerns.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the HTTP transport interface the middleware chain
// composes over.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Pipeline orchestrates every outbound call: conditional-request headers
// from the cache, bearer token from the token manager, circuit breaker
// gate, attempt loop with classified retries, and cache maintenance from
// the response.
type Pipeline struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration

	tokens   *TokenManager
	cache    *CacheStore
	retry    RetryPolicy
	breakers *breakerRegistry

	middleware []Middleware
	metrics    *MetricsCollector
	logger     Logger
	debug      *DebugConfig
	userAgent  string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Do executes one logical call with all resilience layers applied.
func (p *Pipeline) Do(ctx context.Context, r *Request) (*Response, error) {
	start := p.now()
	group := endpointGroup(r.Path)

	var requestID string
	if p.debug != nil && p.debug.Enabled && p.debug.RequestIDGen != nil {
		requestID = p.debug.RequestIDGen()
	}
	if p.debug != nil && p.debug.Enabled && p.debug.LogRequests && p.logger != nil {
		p.logger.Debug("Starting request", "requestID", requestID, "method", r.Method, "path", r.Path)
	}

	p.metrics.RecordRequestStart(r.Method, group)
	defer p.metrics.RecordRequestEnd(r.Method, group)

	var body []byte
	if r.Body != nil {
		var err error
		body, err = json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("quillsign: marshal request body: %w", err)
		}
	}

	// Mutating verbs never read the cache; GETs attach the stored validator.
	var cached *CacheEntry
	var key string
	cacheable := p.cache != nil && r.Method == http.MethodGet && !r.NoCache
	if cacheable {
		key = cacheKey(r.Method, r.Path, r.Query.Encode())
		cached, _ = p.cache.Lookup(key)
		if cached == nil {
			p.metrics.RecordCacheMiss(group)
		}
	}

	token := ""
	if p.tokens != nil {
		var err error
		token, err = p.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
	}

	breaker := p.breakers.forPath(r.Path)

	attempt := 0
	for {
		if ok, retryIn := breaker.Allow(); !ok {
			if p.debug != nil && p.debug.Enabled && p.debug.LogCircuit && p.logger != nil {
				p.logger.Warn("Circuit breaker open", "requestID", requestID, "group", group)
			}
			p.metrics.RecordError("circuit_open", r.Method, group)
			return nil, &CircuitOpenError{Group: group, RetryIn: retryIn}
		}

		if attempt > 0 {
			if p.debug != nil && p.debug.Enabled && p.debug.LogRetries && p.logger != nil {
				p.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", p.retry.MaxRetries)
			}
			p.metrics.RecordRetry(r.Method, group)
		}

		resp, apiErr := p.attempt(ctx, r, body, token, cached)

		if apiErr == nil {
			breaker.RecordSuccess()
			p.metrics.RecordCircuitBreakerState(group, breaker.State())
			out, err := p.finish(r, resp, cached, key, group, requestID)
			if err == nil {
				p.metrics.RecordRequest(r.Method, group, out.StatusCode, p.now().Sub(start))
			}
			if err != nil {
				p.metrics.RecordError(string(errorKindOf(err)), r.Method, group)
			}
			return out, err
		}

		// Transport failures and 5xx count against the breaker; 4xx means
		// the service answered.
		if apiErr.Kind == ErrorKindNetwork || apiErr.Kind == ErrorKindServer {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
		p.metrics.RecordCircuitBreakerState(group, breaker.State())
		p.metrics.RecordError(string(apiErr.Kind), r.Method, group)

		delay, again := p.retry.Next(apiErr, attempt, p.now())
		if !again {
			p.metrics.RecordRequest(r.Method, group, apiErr.StatusCode, p.now().Sub(start))
			return nil, apiErr
		}

		if p.debug != nil && p.debug.Enabled && p.debug.LogRetries && p.logger != nil {
			p.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "delay", delay)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, apiErr
		}
		attempt++
	}
}

// attempt executes one transport round trip. It returns a classified error
// for transport failures and any status >= 400 (except 304, which is a
// success carrying no body).
func (p *Pipeline) attempt(ctx context.Context, r *Request, body []byte, token string, cached *CacheEntry) (*rawResponse, *APIError) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := p.buildHTTPRequest(attemptCtx, r, body, token, cached)
	if err != nil {
		return nil, classify(r.Method, r.Path, nil, nil, err)
	}

	resp, err := p.roundTrip(req)
	if err != nil {
		return nil, classify(r.Method, r.Path, nil, nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(r.Method, r.Path, nil, nil, err)
	}

	if resp.StatusCode >= 400 {
		return nil, classify(r.Method, r.Path, resp, respBody, nil)
	}

	return &rawResponse{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

// finish applies cache maintenance to a successful response and converts it
// to the public Response.
func (p *Pipeline) finish(r *Request, resp *rawResponse, cached *CacheEntry, key, group, requestID string) (*Response, error) {
	// 304: no body was transmitted; serve the cached one. ETag is kept,
	// FetchedAt is refreshed.
	if resp.status == http.StatusNotModified {
		if cached == nil {
			// Conditional header was never sent; nothing to serve.
			return nil, &APIError{
				Kind:       ErrorKindUnknown,
				StatusCode: resp.status,
				Message:    "not modified without cached entry",
				Method:     r.Method,
				Path:       r.Path,
			}
		}
		p.cache.Touch(key, p.now())
		p.metrics.RecordCacheHit(group)
		p.metrics.RecordRevalidation("not_modified")

		if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
			p.logger.Debug("Cache revalidated", "requestID", requestID, "path", r.Path, "etag", cached.ETag)
		}

		header := make(http.Header)
		if cached.ContentType != "" {
			header.Set("Content-Type", cached.ContentType)
		}
		header.Set("ETag", cached.ETag)
		return &Response{
			StatusCode: http.StatusOK,
			Header:     header,
			Body:       cached.Body,
			FromCache:  true,
		}, nil
	}

	if r.Method == http.MethodGet {
		// Only 200 responses carrying a validator are cached.
		if p.cache != nil && !r.NoCache && resp.status == http.StatusOK {
			if etag := resp.header.Get("ETag"); etag != "" {
				p.cache.Put(&CacheEntry{
					Key:         key,
					Method:      r.Method,
					Path:        r.Path,
					Query:       r.Query.Encode(),
					ETag:        etag,
					Body:        resp.body,
					ContentType: resp.header.Get("Content-Type"),
					FetchedAt:   p.now(),
				})
				p.metrics.RecordCacheSize(p.cache.Len())
				if cached != nil {
					p.metrics.RecordRevalidation("modified")
				}

				if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
					p.logger.Debug("Response cached", "requestID", requestID, "path", r.Path, "etag", etag)
				}
			}
		}
	} else if p.cache != nil && resp.status >= 200 && resp.status < 300 {
		for _, prefix := range invalidationPrefixes(r.Path) {
			p.cache.InvalidatePrefix(prefix)
		}
		p.metrics.RecordCacheInvalidation(group)
		p.metrics.RecordCacheSize(p.cache.Len())

		if p.debug != nil && p.debug.Enabled && p.debug.LogCache && p.logger != nil {
			p.logger.Debug("Cache invalidated", "requestID", requestID, "path", r.Path)
		}
	}

	return &Response{
		StatusCode: resp.status,
		Header:     resp.header,
		Body:       resp.body,
	}, nil
}

func (p *Pipeline) buildHTTPRequest(ctx context.Context, r *Request, body []byte, token string, cached *CacheEntry) (*http.Request, error) {
	u := p.baseURL + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cached != nil && r.Method == http.MethodGet {
		req.Header.Set("If-None-Match", cached.ETag)
	}

	return req, nil
}

// roundTrip sends the request through the middleware chain down to the
// underlying HTTP client.
func (p *Pipeline) roundTrip(req *http.Request) (*http.Response, error) {
	if len(p.middleware) == 0 {
		return p.httpClient.Do(req)
	}

	current := RoundTripper(RoundTripperFunc(p.httpClient.Do))
	for i := len(p.middleware) - 1; i >= 0; i-- {
		mw := p.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return mw(r, next)
		})
	}
	return current.RoundTrip(req)
}

// sleepContext waits d, aborting early if ctx is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorKindOf(err error) ErrorKind {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Kind
	}
	return ErrorKindUnknown
}
