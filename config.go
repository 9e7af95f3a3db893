package quillsign

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-sourced client configuration.
type Config struct {
	BaseURL    string        `env:"QUILLSIGN_BASE_URL" envDefault:"https://api.quillsign.com/v1"`
	APIToken   string        `env:"QUILLSIGN_API_TOKEN"`
	Timeout    time.Duration `env:"QUILLSIGN_TIMEOUT" envDefault:"30s"`
	MaxRetries int           `env:"QUILLSIGN_MAX_RETRIES" envDefault:"3"`
	Debug      bool          `env:"QUILLSIGN_DEBUG" envDefault:"false"`
}

// ConfigFromEnv parses configuration from QUILLSIGN_* environment variables.
func ConfigFromEnv() (Config, error) {
	return env.ParseAs[Config]()
}

// NewFromEnv builds an organization client from environment variables.
// Explicit options take precedence over the environment.
func NewFromEnv(opts ...Option) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithBaseURL(cfg.BaseURL),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Debug {
		base = append(base, WithLogger(NewSimpleLogger()), WithDebug())
	}

	return New(cfg.APIToken, append(base, opts...)...)
}
