// Package config reads TEMPORAL_* environment variables. CLI flags take
// their defaults from it.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "TEMPORAL_"

type Config struct {
	DB        string        `env:"DB" envDefault:"temporal.db"`
	Models    string        `env:"MODELS" envDefault:"models"`
	Tolerance time.Duration `env:"TOLERANCE" envDefault:"5s"`
	Format    string        `env:"FORMAT" envDefault:"text"`
	Logger    Logger        `envPrefix:"LOG_"`
	OTel      OTel          `envPrefix:"OTEL_"`
}

type Logger struct {
	Level slog.Level `env:"LEVEL" envDefault:"info"`
}

type OTel struct {
	Enabled bool `env:"ENABLED" envDefault:"false"`
	Stdout  bool `env:"STDOUT" envDefault:"false"`
}

// Parse reads the process environment.
func Parse() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// ParseEnvironment reads vars instead of the process environment.
func ParseEnvironment(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	conf, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks values env cannot check by type alone.
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: %sFORMAT must be text or json, got %q", Prefix, c.Format)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("config: %sTOLERANCE must not be negative, got %s", Prefix, c.Tolerance)
	}
	return nil
}
