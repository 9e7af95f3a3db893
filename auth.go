package quillsign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// authAPI performs the token lifecycle wire calls. These deliberately bypass
// the request pipeline: they carry no bearer header, read no cache, and are
// never retried by policy (the token manager decides what a failure means).
type authAPI struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// tokenPairWire is the refresh/login response body.
type tokenPairWire struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func (w tokenPairWire) pair() *TokenPair {
	return &TokenPair{
		AccessToken:      w.AccessToken,
		AccessExpiresAt:  w.AccessExpiresAt,
		RefreshToken:     w.RefreshToken,
		RefreshExpiresAt: w.RefreshExpiresAt,
	}
}

// Refresh exchanges the current refresh token for a rotated pair.
func (a *authAPI) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var wire tokenPairWire
	err := a.post(ctx, "/auth/token/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &wire)
	if err != nil {
		return nil, err
	}
	return wire.pair(), nil
}

// Revoke invalidates both tokens server-side immediately.
func (a *authAPI) Revoke(ctx context.Context, refreshToken string) error {
	return a.post(ctx, "/auth/token/revoke", map[string]string{
		"refresh_token": refreshToken,
	}, nil)
}

// login exchanges organization credentials for a JWT session pair.
func (a *authAPI) login(ctx context.Context, email, password string) (*TokenPair, error) {
	var wire tokenPairWire
	err := a.post(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &wire)
	if err != nil {
		return nil, err
	}
	return wire.pair(), nil
}

func (a *authAPI) post(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("quillsign: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("quillsign: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return classify(http.MethodPost, path, nil, nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify(http.MethodPost, path, nil, nil, err)
	}

	if resp.StatusCode >= 400 {
		return classify(http.MethodPost, path, resp, respBody, nil)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("quillsign: decode auth response: %w", err)
		}
	}
	return nil
}
