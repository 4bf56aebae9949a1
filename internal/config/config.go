// Package config loads the CLI configuration from flags, SCHEMAMIGRATE_*
// environment variables, an optional YAML file and defaults, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/tordrt/schemamigrate/internal/logging"
)

// DefaultFile is read when no config file is named and it exists
const DefaultFile = "schemamigrate.yaml"

// EnvPrefix prefixes every environment variable, e.g. SCHEMAMIGRATE_LOG_LEVEL
const EnvPrefix = "SCHEMAMIGRATE"

// Config holds every setting the commands use
type Config struct {
	DatabaseURL     string        `mapstructure:"database_url"`
	Mapping         string        `mapstructure:"mapping" validate:"required"`
	Deployments     string        `mapstructure:"deployments" validate:"required"`
	Client          string        `mapstructure:"client"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" validate:"gt=0"`
	Concurrency     int           `mapstructure:"concurrency" validate:"min=1,max=64"`
	RateLimit       float64       `mapstructure:"rate_limit" validate:"gte=0"`
	MetricsTextfile string        `mapstructure:"metrics_textfile"`
	Log             Log           `mapstructure:"log"`
}

// Log configures logging
type Log struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
}

var defaults = map[string]any{
	"mapping":         "mapping.json",
	"deployments":     "deployments",
	"action_timeout":  30 * time.Second,
	"concurrency":     4,
	"rate_limit":      5.0,
	"log.level":       "info",
	"log.format":      "text",
	"log.max_size_mb": 10,
	"log.max_backups": 3,
}

// keys lists every setting so environment variables are seen by Unmarshal
var keys = []string{
	"database_url", "mapping", "deployments", "client",
	"action_timeout", "concurrency", "rate_limit", "metrics_textfile",
	"log.level", "log.format", "log.file", "log.max_size_mb", "log.max_backups",
}

// Load builds the configuration. path names a YAML config file; when empty,
// DefaultFile is used if present. Flags bind to keys by name, with dashes
// standing for underscores and dots ("database-url", "log-level").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", k, err)
		}
	}

	if flags != nil {
		for _, k := range keys {
			if f := flags.Lookup(flagName(k)); f != nil {
				if err := v.BindPFlag(k, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", strings.ToLower(verrs[0].Namespace()), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Logging returns the logger configuration
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
	}
}

// Limiter returns the field-creation rate limiter, or nil when unlimited
func (c *Config) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), 1)
}

func flagName(key string) string {
	return strings.NewReplacer("_", "-", ".", "-").Replace(key)
}
