// Package config loads server settings from an optional .env file, the
// environment and command-line flags, in that order of increasing priority.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":3000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envDefault:"localhost:5173" envSeparator:","`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	GridWidth       int           `env:"GRID_WIDTH" envDefault:"20"`
	GridHeight      int           `env:"GRID_HEIGHT" envDefault:"20"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	NarratorAPIKey  string        `env:"NARRATOR_API_KEY"`
	NarratorModel   string        `env:"NARRATOR_MODEL" envDefault:"gpt-4o-mini"`
	NarratorBaseURL string        `env:"NARRATOR_BASE_URL"`
	NarratorTimeout time.Duration `env:"NARRATOR_TIMEOUT" envDefault:"8s"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

const envPrefix = "TABLETOP_"

// ParseEnv fills cfg from TABLETOP_-prefixed environment variables.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds the effective configuration: .env, then environment, then
// flags from args.
func Load(args []string) (Config, error) {
	var cfg Config
	if err := LoadDotEnv(".env"); err != nil {
		return cfg, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}

	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json, console)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "postgres DSN for the catalog; empty disables it")
	if args == nil {
		args = []string{}
	}
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.GridWidth <= 0 || c.GridHeight <= 0 {
		return fmt.Errorf("grid must be positive, got %dx%d", c.GridWidth, c.GridHeight)
	}
	if c.NarratorTimeout <= 0 {
		return errors.New("narrator timeout must be positive")
	}
	return nil
}
