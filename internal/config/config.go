// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	// DatabaseURL enables the round history store when set.
	DatabaseURL string `env:"DATABASE_URL"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	RollDelayMin time.Duration `env:"ROLL_DELAY_MIN" envDefault:"750ms"`
	RollDelayMax time.Duration `env:"ROLL_DELAY_MAX" envDefault:"2250ms"`
	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s"`

	MaxNameLength     int     `env:"MAX_NAME_LENGTH" envDefault:"24"`
	MessagesPerSecond float64 `env:"MESSAGES_PER_SECOND" envDefault:"5"`
	MessageBurst      int     `env:"MESSAGE_BURST" envDefault:"10"`
}

// Load reads .env files (if present) and parses the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.RollDelayMin < 0 || c.RollDelayMax < c.RollDelayMin {
		errs = append(errs, fmt.Errorf("roll delay range invalid: %s..%s", c.RollDelayMin, c.RollDelayMax))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("PING_INTERVAL must be positive"))
	}
	if c.MaxNameLength <= 0 {
		errs = append(errs, errors.New("MAX_NAME_LENGTH must be positive"))
	}
	if c.MessagesPerSecond <= 0 || c.MessageBurst <= 0 {
		errs = append(errs, errors.New("message rate limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
