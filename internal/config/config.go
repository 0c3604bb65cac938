// Package config loads run settings from ASORG_* environment variables and
// optional .env files. Command-line flags override these values.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/eunmann/asorg-db/pkg/snapshot"
)

// Prefix is prepended to every variable name.
const Prefix = "ASORG_"

// DefaultEnvFiles are loaded, when present, before parsing.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config holds the settings shared by all commands.
type Config struct {
	CacheDir    string `env:"CACHE_DIR" envDefault:"cache_dir/as-organizations"`
	OutputDir   string `env:"OUTPUT_DIR" envDefault:"outputs"`
	TmpDir      string `env:"TMP_DIR" envDefault:"outputs/.tmp"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"4"`

	// Since and Until bound the folded snapshot days (YYYYMMDD, inclusive).
	Since string `env:"SINCE" envDefault:"20120101"`
	Until string `env:"UNTIL"`

	S3Bucket      string `env:"S3_BUCKET"`
	S3Prefix      string `env:"S3_PREFIX" envDefault:"as-organizations/"`
	PublishBucket string `env:"PUBLISH_BUCKET"`
	PublishPrefix string `env:"PUBLISH_PREFIX"`

	LogDebug bool `env:"LOG_DEBUG" envDefault:"false"`
	LogHuman bool `env:"LOG_HUMAN" envDefault:"false"`
}

// LoadEnv loads the env files that exist into the process environment.
// Variables already set are not overridden. It returns how many files
// were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("load env files: %w", err)
	}
	return len(existing), nil
}

// Load reads the default env files and parses the environment.
func Load() (*Config, error) {
	if _, err := LoadEnv(DefaultEnvFiles); err != nil {
		return nil, err
	}
	return Parse()
}

// Parse parses the process environment without touching env files.
func Parse() (*Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the day bounds and concurrency.
func (c *Config) Validate() error {
	var errs []error
	if c.Since != "" && !snapshot.ValidDay(c.Since) {
		errs = append(errs, fmt.Errorf("%sSINCE: invalid day %q", Prefix, c.Since))
	}
	if c.Until != "" && !snapshot.ValidDay(c.Until) {
		errs = append(errs, fmt.Errorf("%sUNTIL: invalid day %q", Prefix, c.Until))
	}
	if c.Since != "" && c.Until != "" && c.Since > c.Until {
		errs = append(errs, fmt.Errorf("since %s is after until %s", c.Since, c.Until))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%sCONCURRENCY must be positive, got %d", Prefix, c.Concurrency))
	}
	return errors.Join(errs...)
}
