package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goodmorning.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "TABLE_PREFIX", "INGEST_DELAY", "RUN_MIGRATIONS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "morningstar_", cfg.Database.TablePrefix)
	assert.Equal(t, "GBR", cfg.Source.Region)
	assert.Equal(t, "en_US", cfg.Source.Culture)
	assert.Equal(t, "USD", cfg.Source.Currency)
	assert.Equal(t, 60*time.Second, cfg.Source.GetTimeout())
	assert.Equal(t, time.Second, cfg.Source.GetDelay())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
environment = "production"

[server]
port = 9090

[database]
table_prefix = "ms_"

[source]
rate_limit = 5
timeout = "15s"
delay = "250ms"
`)
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://localhost/goodmorning")
	t.Setenv("RUN_MIGRATIONS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 7070, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "ms_", cfg.Database.TablePrefix)
	assert.Equal(t, "postgres://localhost/goodmorning", cfg.Database.URL)
	assert.False(t, cfg.Database.RunMigrations)
	assert.Equal(t, 5, cfg.Source.RateLimit)
	assert.Equal(t, 15*time.Second, cfg.Source.GetTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Source.GetDelay())
	assert.Equal(t, 3, cfg.Source.Retries, "unset keys keep defaults")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "port"},
		{"rate", func(c *Config) { c.Source.RateLimit = 0 }, "rate_limit"},
		{"retries", func(c *Config) { c.Source.Retries = 0 }, "retries"},
		{"base url", func(c *Config) { c.Source.BaseURL = "" }, "base_url"},
		{"prefix", func(c *Config) { c.Database.TablePrefix = "Bad-Prefix" }, "table prefix"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}
