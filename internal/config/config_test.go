package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-minimum-32-bytes"

var envKeys = []string{
	ConfigPathEnv, "PORT", "STORAGE_BACKEND", "DATABASE_URL", "SQLITE_PATH", "BLOB_PATH",
	"STORAGE_MAX_RETRIES", "MAX_PACK_CHARS", "GENERATE_TIMEOUT", "MAX_PAGES", "MAX_PHOTO_BYTES",
	"CHROME_PATH", "SESSION_TOKEN_SECRET", "SESSION_TOKEN_TTL_HOURS", "RATE_LIMIT_ENABLED",
	"RATE_LIMIT_DEFAULT_PER_MINUTE", "RATE_LIMIT_GENERATE_PER_HOUR", "RATE_LIMIT_ALLOWLIST",
	"RATE_LIMIT_DENYLIST",
}

// clearEnv blanks every key Load reads; empty values count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_TOKEN_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 3, cfg.StorageMaxRetries)
	assert.Equal(t, 24000, cfg.MaxPackChars)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.GenerateTimeout))
	assert.Equal(t, 24*time.Hour, cfg.Tokens.TTL())
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2, cfg.Limits().MaxPages)
}

func TestLoad_RequiresSecret(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_TOKEN_SECRET")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_TOKEN_SECRET", testSecret)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/cv.db")
	t.Setenv("GENERATE_TIMEOUT", "45s")
	t.Setenv("MAX_PACK_CHARS", "12000")
	t.Setenv("SESSION_TOKEN_TTL_HOURS", "2")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_ALLOWLIST", "10.0.0.1, ,10.0.0.2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, "/tmp/cv.db", cfg.SQLitePath)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.GenerateTimeout))
	assert.Equal(t, 12000, cfg.MaxPackChars)
	assert.Equal(t, 2*time.Hour, cfg.Tokens.TTL())
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RateLimit.Allowlist)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{
		"port": 7070,
		"storage_backend": "postgres",
		"database_url": "postgres://file",
		"generate_timeout": "2m",
		"tokens": {"secret": "`+testSecret+`", "ttl_hours": 6}
	}`)
	t.Setenv(ConfigPathEnv, path)
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "postgres://env", cfg.DatabaseURL, "env wins over the file")
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.GenerateTimeout))
	assert.Equal(t, 6, cfg.Tokens.TTLHours)
	assert.Equal(t, 3, cfg.StorageMaxRetries, "unset keys keep defaults")
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"GENERATE_TIMEOUT", "soon"},
		{"RATE_LIMIT_ENABLED", "maybe"},
		{"SESSION_TOKEN_TTL_HOURS", "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SESSION_TOKEN_SECRET", testSecret)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestGetEnvDuration_Seconds(t *testing.T) {
	t.Setenv("X_TIMEOUT", "30")
	d, err := getEnvDuration("X_TIMEOUT", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"generate_timeout": 90}`))
	assert.Error(t, err)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Tokens.Secret = testSecret
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Port = 0 }, "port"},
		{"unknown backend", func(c *Config) { c.StorageBackend = "mongo" }, "unknown storage backend"},
		{"postgres without url", func(c *Config) { c.StorageBackend = BackendPostgres }, "DATABASE_URL"},
		{"sqlite without path", func(c *Config) { c.StorageBackend = BackendSQLite }, "SQLITE_PATH"},
		{"no retries", func(c *Config) { c.StorageMaxRetries = 0 }, "storage_max_retries"},
		{"tiny pack", func(c *Config) { c.MaxPackChars = 10 }, "max_pack_chars"},
		{"zero timeout", func(c *Config) { c.GenerateTimeout = 0 }, "generate_timeout"},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, "max_pages"},
		{"short secret", func(c *Config) { c.Tokens.Secret = "short" }, "at least 32 bytes"},
		{"zero ttl", func(c *Config) { c.Tokens.TTLHours = 0 }, "SESSION_TOKEN_TTL_HOURS"},
		{"negative rate", func(c *Config) { c.RateLimit.GeneratePerHour = -1 }, "rate limits"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	c := Default()
	c.RateLimit.DefaultPerMinute = 100
	c.RateLimit.GeneratePerHour = 4
	c.RateLimit.Allowlist = []string{"10.0.0.1"}
	c.RateLimit.Denylist = []string{"192.0.2.1"}

	rc := c.RateLimiter()
	assert.True(t, rc.Enabled)
	assert.Equal(t, 100, rc.Default.Limit)
	rule := ratelimit.Match(ratelimit.ToolRoute("generate_pdf"), rc.Rules)
	require.NotNil(t, rule)
	assert.Equal(t, 4, rule.Limit)
	assert.True(t, rc.Allowlist["10.0.0.1"])
	assert.True(t, rc.Denylist["192.0.2.1"])
}

func TestLimits(t *testing.T) {
	c := Default()
	c.MaxPages = 1
	c.MaxPhotoBytes = 1024
	l := c.Limits()
	assert.Equal(t, 1, l.MaxPages)
	assert.Equal(t, 1024, l.MaxPhotoBytes)
	assert.Equal(t, 300, l.MaxBulletChars)
}
