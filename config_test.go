package quillsign

import (
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("QUILLSIGN_BASE_URL", "")
	t.Setenv("QUILLSIGN_API_TOKEN", "")
	t.Setenv("QUILLSIGN_TIMEOUT", "")
	t.Setenv("QUILLSIGN_MAX_RETRIES", "")
	t.Setenv("QUILLSIGN_DEBUG", "")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, defaultBaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("QUILLSIGN_BASE_URL", "https://staging.quillsign.dev/v1")
	t.Setenv("QUILLSIGN_API_TOKEN", "tok-env")
	t.Setenv("QUILLSIGN_TIMEOUT", "5s")
	t.Setenv("QUILLSIGN_MAX_RETRIES", "1")
	t.Setenv("QUILLSIGN_DEBUG", "true")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.BaseURL != "https://staging.quillsign.dev/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.APIToken != "tok-env" {
		t.Errorf("APIToken = %q", cfg.APIToken)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("QUILLSIGN_BASE_URL", "https://staging.quillsign.dev/v1")
	t.Setenv("QUILLSIGN_API_TOKEN", "tok-env")
	t.Setenv("QUILLSIGN_TIMEOUT", "5s")
	t.Setenv("QUILLSIGN_MAX_RETRIES", "2")
	t.Setenv("QUILLSIGN_DEBUG", "false")

	c, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if c.baseURL != "https://staging.quillsign.dev/v1" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.timeout)
	}
	if c.retry.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d", c.retry.MaxRetries)
	}

	// Explicit options win over the environment.
	c, err = NewFromEnv(WithMaxRetries(7))
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if c.retry.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want explicit 7", c.retry.MaxRetries)
	}
}

func TestNewFromEnvMissingToken(t *testing.T) {
	t.Setenv("QUILLSIGN_API_TOKEN", "")
	if _, err := NewFromEnv(); err == nil {
		t.Error("expected an error without QUILLSIGN_API_TOKEN")
	}
}
