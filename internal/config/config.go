// Package config loads service configuration from defaults, an optional TOML
// file and the environment (in that order of precedence, lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigPath = "goodmorning.toml"
	defaultBaseURL    = "http://financials.morningstar.com"
)

var prefixPattern = regexp.MustCompile(`^[a-z0-9_]*$`)

// Config holds all configuration for the service
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Database    DatabaseConfig `toml:"database"`
	Source      SourceConfig   `toml:"source"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `toml:"port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL           string `toml:"url"`
	RunMigrations bool   `toml:"run_migrations"`
	TablePrefix   string `toml:"table_prefix"`
}

// SourceConfig holds settings for the Morningstar endpoints
type SourceConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
	Retries   int    `toml:"retries"`
	Delay     string `toml:"delay"` // pause between tickers in a multi-ticker run
	Region    string `toml:"region"`
	Culture   string `toml:"culture"`
	Currency  string `toml:"currency"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// GetTimeout parses and returns the HTTP timeout
func (c *SourceConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetDelay parses and returns the delay between tickers
func (c *SourceConfig) GetDelay() time.Duration {
	d, err := time.ParseDuration(c.Delay)
	if err != nil {
		return time.Second
	}
	return d
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			RunMigrations: true,
			TablePrefix:   "morningstar_",
		},
		Source: SourceConfig{
			BaseURL:   defaultBaseURL,
			RateLimit: 2,
			Timeout:   "60s",
			Retries:   3,
			Delay:     "1s",
			Region:    "GBR",
			Culture:   "en_US",
			Currency:  "USD",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration. A missing file is not an error; a malformed
// one is. The .env file, if present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("GOODMORNING_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("TABLE_PREFIX"); v != "" {
		c.Database.TablePrefix = v
	}
	if v := os.Getenv("RUN_MIGRATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_MIGRATIONS: %w", err)
		}
		c.Database.RunMigrations = b
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MORNINGSTAR_BASE_URL"); v != "" {
		c.Source.BaseURL = v
	}
	if v := os.Getenv("INGEST_DELAY"); v != "" {
		c.Source.Delay = v
	}
	return nil
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Source.RateLimit <= 0 {
		return fmt.Errorf("source rate_limit must be positive, got %d", c.Source.RateLimit)
	}
	if c.Source.Retries < 1 {
		return fmt.Errorf("source retries must be at least 1, got %d", c.Source.Retries)
	}
	if c.Source.BaseURL == "" {
		return errors.New("source base_url is required")
	}
	if !prefixPattern.MatchString(c.Database.TablePrefix) {
		return fmt.Errorf("table prefix %q may only contain lowercase letters, digits and underscores", c.Database.TablePrefix)
	}
	return nil
}
