package quillsign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("New(\"\") error = %v, want ErrNotAuthenticated", err)
	}
}

func TestNewDefaults(t *testing.T) {
	c, err := New("tok")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL != defaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, defaultBaseURL)
	}
	if c.retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", c.retry.MaxRetries)
	}
	if c.TokenKind() != TokenKindOrganization {
		t.Errorf("TokenKind = %v, want organization", c.TokenKind())
	}
	if c.cache == nil {
		t.Error("cache should be enabled by default")
	}
}

func TestNewWithSessionRequiresAccessToken(t *testing.T) {
	if _, err := NewWithSession(TokenPair{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestNewSignerSessionRequiresBothTokens(t *testing.T) {
	if _, err := NewSignerSession(TokenPair{AccessToken: "a"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("missing refresh token: error = %v, want ErrNotAuthenticated", err)
	}
	if _, err := NewSignerSession(TokenPair{RefreshToken: "r"}); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("missing access token: error = %v, want ErrNotAuthenticated", err)
	}

	c, err := NewSignerSession(TokenPair{
		AccessToken:  "a",
		RefreshToken: "r",
	})
	if err != nil {
		t.Fatalf("NewSignerSession: %v", err)
	}
	if c.TokenKind() != TokenKindSignerSession {
		t.Errorf("TokenKind = %v, want signer session", c.TokenKind())
	}
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want string
	}{
		{"negative timeout", WithTimeout(-time.Second), "timeout must be positive"},
		{"empty base URL", WithBaseURL(""), "base URL must not be empty"},
		{"nil http client", WithHTTPClient(nil), "HTTP client must not be nil"},
		{"negative retries", WithMaxRetries(-1), "maxRetries must be non-negative"},
		{"bad jitter", WithRetryPolicy(RetryPolicy{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, Jitter: 1.5}), "jitter must be between 0 and 1"},
		{"inverted delays", WithRetryPolicy(RetryPolicy{MaxRetries: 1, InitialDelay: time.Minute, MaxDelay: time.Second, Multiplier: 2}), "maxDelay must be greater than or equal to initialDelay"},
		{"debug without logger", WithDebug(), "logger must be set when debug is enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("tok", tt.opt)
			if err == nil {
				t.Fatal("expected a configuration error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidationAggregatesProblems(t *testing.T) {
	_, err := New("tok", WithTimeout(-1), WithBaseURL(""))
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if !strings.Contains(err.Error(), "timeout") || !strings.Contains(err.Error(), "base URL") {
		t.Errorf("error = %q, want both problems reported", err)
	}
}

func TestWithBaseURLTrimsTrailingSlash(t *testing.T) {
	c, err := New("tok", WithBaseURL("https://api.example.com/v2/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.baseURL != "https://api.example.com/v2" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestWithCacheDisabled(t *testing.T) {
	c, err := New("tok", WithCacheDisabled())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.cache != nil {
		t.Error("cache should be nil when disabled")
	}
}

func TestClientEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/envelopes":
			w.Header().Set("ETag", `"v1"`)
			fmt.Fprint(w, `{"envelopes":[{"id":"1","status":"draft"}]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/envelopes":
			var params CreateEnvelopeParams
			json.NewDecoder(r.Body).Decode(&params)
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"id":"2","status":"draft","subject":%q}`, params.Subject)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := New("tok", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	envelopes, err := c.Envelopes().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(envelopes) != 1 || envelopes[0].ID != "1" {
		t.Errorf("List = %+v", envelopes)
	}

	env, err := c.Envelopes().Create(ctx, CreateEnvelopeParams{Subject: "NDA"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if env.ID != "2" || env.Subject != "NDA" {
		t.Errorf("Create = %+v", env)
	}
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			http.NotFound(w, r)
			return
		}
		var creds map[string]string
		json.NewDecoder(r.Body).Decode(&creds)
		if creds["email"] != "ops@example.com" || creds["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"invalid credentials"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":"jwt-1","access_expires_at":%q,"refresh_token":"r-1","refresh_expires_at":%q}`,
			time.Now().Add(time.Hour).Format(time.RFC3339),
			time.Now().Add(24*time.Hour).Format(time.RFC3339))
	}))
	defer server.Close()

	ctx := context.Background()
	opts := []Option{WithBaseURL(server.URL), WithHTTPClient(server.Client())}

	c, err := Login(ctx, "ops@example.com", "hunter2", opts...)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.TokenKind() != TokenKindOrganization {
		t.Errorf("TokenKind = %v, want organization", c.TokenKind())
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "jwt-1" {
		t.Errorf("Token = %q, want jwt-1", tok)
	}

	_, err = Login(ctx, "ops@example.com", "wrong", opts...)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != ErrorKindAuthentication {
		t.Errorf("bad password: err = %v, want authentication APIError", err)
	}
}

func TestLogout(t *testing.T) {
	var revoked int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token/revoke":
			atomic.AddInt32(&revoked, 1)
			w.WriteHeader(http.StatusNoContent)
		case "/envelopes":
			w.Header().Set("ETag", `"v1"`)
			fmt.Fprint(w, `{"envelopes":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := NewSignerSession(TokenPair{
		AccessToken:      "a-1",
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshToken:     "r-1",
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}, WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewSignerSession: %v", err)
	}
	ctx := context.Background()

	if _, err := c.Envelopes().List(ctx); err != nil {
		t.Fatalf("List: %v", err)
	}
	if c.cache.Len() != 1 {
		t.Fatalf("cache Len = %d, want 1", c.cache.Len())
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := atomic.LoadInt32(&revoked); n != 1 {
		t.Errorf("revoke calls = %d, want 1", n)
	}
	if c.cache.Len() != 0 {
		t.Errorf("cache Len = %d after Logout, want 0", c.cache.Len())
	}

	// The session is terminal now.
	if _, err := c.Envelopes().List(ctx); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("List after Logout = %v, want ErrSessionExpired", err)
	}
}

func TestClientsAreIndependent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, `{"envelopes":[]}`)
	}))
	defer server.Close()

	opts := []Option{WithBaseURL(server.URL), WithHTTPClient(server.Client())}
	a, _ := New("tok-a", opts...)
	b, _ := New("tok-b", opts...)

	if _, err := a.Envelopes().List(context.Background()); err != nil {
		t.Fatalf("List: %v", err)
	}
	if a.cache.Len() != 1 {
		t.Errorf("client a cache Len = %d, want 1", a.cache.Len())
	}
	if b.cache.Len() != 0 {
		t.Errorf("client b cache Len = %d, want 0 (caches must not be shared)", b.cache.Len())
	}
}

func TestDoEscapeHatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/beta/bulk-send" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"queued":true}`)
	}))
	defer server.Close()

	c, err := New("tok", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := c.Do(context.Background(), &Request{Method: http.MethodPost, Path: "/beta/bulk-send"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if string(resp.Body) != `{"queued":true}` {
		t.Errorf("Body = %q", resp.Body)
	}
}
