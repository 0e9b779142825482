// Package config loads heatbatch settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"heatbatch/internal/registry"
)

// Config holds settings shared by every mode of the CLI. Flags override these values.
type Config struct {
	DataPath     string   `env:"HEAT_DATA_PATH"   envDefault:"./data"`
	RegistryPath string   `env:"HEAT_REGISTRY"`
	ShotDigits   int      `env:"HEAT_SHOT_DIGITS" envDefault:"6"`
	TimeDigits   int      `env:"HEAT_TIME_DIGITS" envDefault:"9"`
	LogFormat    string   `env:"HEAT_LOG_FORMAT"  envDefault:"json"`
	WebAddr      string   `env:"HEAT_WEB_ADDR"    envDefault:":8080"`
	EngineCmd    []string `env:"HEAT_ENGINE_CMD"  envSeparator:" "`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges env.Parse cannot express.
func (c *Config) Validate() error {
	if c.ShotDigits < 1 || c.ShotDigits > 12 {
		return fmt.Errorf("HEAT_SHOT_DIGITS must be between 1 and 12, got %d", c.ShotDigits)
	}
	if c.TimeDigits < 0 || c.TimeDigits > 12 {
		return fmt.Errorf("HEAT_TIME_DIGITS must be between 0 and 12, got %d", c.TimeDigits)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("HEAT_LOG_FORMAT must be 'json' or 'console', got %q", c.LogFormat)
	}
	return nil
}

// Registry returns the registry named by RegistryPath, or the built-in one.
func (c *Config) Registry() (*registry.Registry, error) {
	if c.RegistryPath == "" {
		return registry.Default(), nil
	}
	return registry.Load(c.RegistryPath)
}
