// Package config loads server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the full server configuration, populated from environment
// variables. Flags in cmd/server may override individual fields.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	Server struct {
		Port            int      `env:"PORT" envDefault:"8080"`
		ReadTimeout     int      `env:"READ_TIMEOUT" envDefault:"15"`
		WriteTimeout    int      `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int      `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int      `env:"SHUTDOWN_TIMEOUT" envDefault:"30"`
		AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`
	} `envPrefix:"SERVER_"`

	Database struct {
		// Driver selects the store implementation: sqlite or postgres.
		Driver string `env:"DRIVER" envDefault:"sqlite"`
		// DSN is the SQLite path (":memory:" allowed) or PostgreSQL URL.
		DSN string `env:"DSN" envDefault:"vacation.db"`
	} `envPrefix:"DATABASE_"`

	JWT struct {
		Secret string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`

	Vacation struct {
		// OccupancyThreshold is the tolerated fraction of a team absent
		// at once, e.g. "0.5".
		OccupancyThreshold string `env:"OCCUPANCY_THRESHOLD" envDefault:"0.5"`
		// Holidays is a comma-separated list of ISO dates treated as
		// organization holidays.
		Holidays []string `env:"HOLIDAYS"`
		// DirectoryFile points at a JSON file with employees and teams
		// for the static directory. Empty = empty directory.
		DirectoryFile string `env:"DIRECTORY_FILE"`
	} `envPrefix:"VACATION_"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if _, err := cfg.Threshold(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Threshold parses the occupancy threshold.
func (c *Config) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Vacation.OccupancyThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid occupancy threshold %q: %w", c.Vacation.OccupancyThreshold, err)
	}
	return d, nil
}
