package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                int    `env:"PORT" envDefault:"8484"`
	DataDir             string `env:"DATA_DIR" envDefault:"./data"`
	DatabaseURL         string `env:"DATABASE_URL"`
	RedisURL            string `env:"REDIS_URL"`
	DefaultBlockMinutes int    `env:"DEFAULT_BLOCK_MINUTES" envDefault:"50"`
	RateLimitPerMin     int    `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	LogLevel            string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RemoteStoreConfigured reports whether a remote session store is available.
// Without one the server runs in anonymous-only mode.
func (c *Config) RemoteStoreConfigured() bool {
	return c.DatabaseURL != ""
}

func (c *Config) DefaultBlockDuration() time.Duration {
	return time.Duration(c.DefaultBlockMinutes) * time.Minute
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	if c.DefaultBlockMinutes <= 0 || c.DefaultBlockMinutes > MaxBlockMinutes {
		return fmt.Errorf("DEFAULT_BLOCK_MINUTES must be between 1 and %d", MaxBlockMinutes)
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
