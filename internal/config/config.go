package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// StoreBackend selects where session documents live: memory, sqlite or redis.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	DBPath       string `env:"DB_PATH" envDefault:"data/groupquest.db"`
	RedisURL     string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	TxMaxRetries int    `env:"TX_MAX_RETRIES" envDefault:"16"`

	MaxGroupSize  int           `env:"MAX_GROUP_SIZE" envDefault:"12"`
	MinCountdown  time.Duration `env:"MIN_COUNTDOWN" envDefault:"3s"`
	MaxCountdown  time.Duration `env:"MAX_COUNTDOWN" envDefault:"5m"`
	MaxCodeLength int           `env:"MAX_CODE_LENGTH" envDefault:"32"`
	MaxNameLength int           `env:"MAX_NAME_LENGTH" envDefault:"40"`

	// AdminTokenHash is a bcrypt hash of the operator token. Empty disables
	// the check on admin routes.
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("STORE_BACKEND must be memory, sqlite or redis, got %q", c.StoreBackend)
	}
	if c.MaxGroupSize != 0 && c.MaxGroupSize < 3 {
		return fmt.Errorf("MAX_GROUP_SIZE must be at least 3, got %d", c.MaxGroupSize)
	}
	if c.MaxCountdown != 0 && c.MaxCountdown < c.MinCountdown {
		return fmt.Errorf("MAX_COUNTDOWN %s is below MIN_COUNTDOWN %s", c.MaxCountdown, c.MinCountdown)
	}
	if c.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES must not be negative, got %d", c.TxMaxRetries)
	}
	return nil
}
