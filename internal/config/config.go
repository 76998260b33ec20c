// Package config resolves the external configuration record of spec.md
// §6. Grounded on ws/config.go in the teacher: godotenv loads an optional
// .env file, then caarlos0/env parses environment variables into a
// struct, then a Validate pass rejects inconsistent combinations.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config is the resolved configuration record the core consumes.
type Config struct {
	Persist   bool   `env:"HISTORY_PERSIST" envDefault:"false"`
	Directory string `env:"HISTORY_DIRECTORY" envDefault:"data/history"`
	DBSecret  string `env:"HISTORY_DB_SECRET"`

	// Scheduler tuning (spec.md §4.4); defaults match HISTORY_SPREAD /
	// HISTORY_MAX_OFF_SECS in the original module.
	Spread     int `env:"HISTORY_SPREAD" envDefault:"60"`
	MaxOffSecs int `env:"HISTORY_MAX_OFF_SECS" envDefault:"300"`

	// StrictMode substitutes for the original's #ifdef DEBUGMODE abort()
	// on a zero-limit Add (spec.md §7, SPEC_FULL.md supplemented feature 4).
	StrictMode bool `env:"HISTORY_STRICT_MODE" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MetricsAddr string `env:"HISTORY_METRICS_ADDR" envDefault:":9102"`
}

// Load reads an optional .env file, then environment variables, into a
// Config, and validates the result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if cfg.Directory != "" {
		abs, err := filepath.Abs(cfg.Directory)
		if err != nil {
			return nil, fmt.Errorf("config: resolve directory: %w", err)
		}
		cfg.Directory = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects the inconsistent option combinations spec.md §6 calls
// out: db-secret without persist, persist without db-secret. Whether the
// secret actually opens an existing master file is checked later, by
// persistence.Open, since that requires touching disk.
func (c *Config) Validate() error {
	if c.Persist && c.DBSecret == "" {
		return fmt.Errorf("config: persist is enabled but db-secret is not set")
	}
	if !c.Persist && c.DBSecret != "" {
		return fmt.Errorf("config: db-secret is set but persist is disabled")
	}
	if c.Spread <= 0 {
		return fmt.Errorf("config: spread must be positive")
	}
	if c.MaxOffSecs <= 0 {
		return fmt.Errorf("config: max-off-secs must be positive")
	}
	return nil
}

// Capability reports the capability string advertised to clients
// (spec.md §4.6/§6).
func (c *Config) Capability() string {
	if c.Persist {
		return "memory,disk=encrypted"
	}
	return "memory"
}
