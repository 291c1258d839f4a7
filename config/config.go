// Package config loads environment variables into a typed Config used across
// the service. Defaults are chosen so the binary runs locally with no setup.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Storage
	DBPath string `env:"DB_PATH" envDefault:"data/ledger.db"`

	// HTTP
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Submissions
	RetryTTL         time.Duration `env:"SUBMIT_RETRY_TTL" envDefault:"300s"`
	MaxPoints        int           `env:"MAX_POINTS" envDefault:"1000"`
	LeaderboardLimit int           `env:"LEADERBOARD_LIMIT" envDefault:"100"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// Tracing. Tracing is disabled when the endpoint is empty.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"bingo-ledger"`
}

// Load reads environment variables and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.RetryTTL <= 0 {
		return nil, fmt.Errorf("SUBMIT_RETRY_TTL must be positive, got %s", cfg.RetryTTL)
	}
	if cfg.MaxPoints <= 0 {
		return nil, fmt.Errorf("MAX_POINTS must be positive, got %d", cfg.MaxPoints)
	}
	if cfg.LeaderboardLimit <= 0 {
		return nil, fmt.Errorf("LEADERBOARD_LIMIT must be positive, got %d", cfg.LeaderboardLimit)
	}
	return cfg, nil
}
