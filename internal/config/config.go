// Package config loads the service configuration from an optional JSON file
// and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/cv-tailor/internal/server/ratelimit"
	"github.com/jonathan/cv-tailor/internal/validation"
)

// Storage backends for the hot tier.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// ConfigPathEnv names the optional JSON config file.
const ConfigPathEnv = "CV_AGENT_CONFIG"

// Config is the service configuration. JSON keys match the file format;
// environment variables override file values.
type Config struct {
	Port int `json:"port,omitempty"`

	// Storage
	StorageBackend    string `json:"storage_backend,omitempty"`
	DatabaseURL       string `json:"database_url,omitempty"`
	SQLitePath        string `json:"sqlite_path,omitempty"`
	BlobPath          string `json:"blob_path,omitempty"` // empty keeps blobs in memory
	StorageMaxRetries int    `json:"storage_max_retries,omitempty"`

	// Tools
	MaxPackChars    int      `json:"max_pack_chars,omitempty"`
	GenerateTimeout Duration `json:"generate_timeout,omitempty"`
	MaxPages        int      `json:"max_pages,omitempty"`
	MaxPhotoBytes   int      `json:"max_photo_bytes,omitempty"`
	ChromePath      string   `json:"chrome_path,omitempty"`

	Tokens    TokenConfig     `json:"tokens"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// TokenConfig configures session bearer tokens.
type TokenConfig struct {
	Secret   string `json:"secret,omitempty"`
	TTLHours int    `json:"ttl_hours,omitempty"`
}

// TTL returns the token lifetime.
func (c TokenConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// RateLimitConfig configures the HTTP rate limiter.
type RateLimitConfig struct {
	Enabled          bool     `json:"enabled"`
	DefaultPerMinute int      `json:"default_per_minute,omitempty"`
	GeneratePerHour  int      `json:"generate_per_hour,omitempty"`
	Allowlist        []string `json:"allowlist,omitempty"`
	Denylist         []string `json:"denylist,omitempty"`
}

// Duration is a time.Duration that reads "90s" style strings from JSON.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Default returns the built-in configuration.
func Default() *Config {
	limits := validation.DefaultLimits()
	return &Config{
		Port:              8080,
		StorageBackend:    BackendMemory,
		StorageMaxRetries: 3,
		MaxPackChars:      24000,
		GenerateTimeout:   Duration(90 * time.Second),
		MaxPages:          limits.MaxPages,
		MaxPhotoBytes:     limits.MaxPhotoBytes,
		Tokens:            TokenConfig{TTLHours: 24},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			DefaultPerMinute: 600,
			GeneratePerHour:  10,
		},
	}
}

// Load builds the configuration: defaults, then the JSON file named by
// CV_AGENT_CONFIG if set, then environment variables. The result is
// validated.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from a JSON file on top of the defaults.
// It does not read the environment or validate.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	c.Port, err = getEnvInt("PORT", c.Port)
	if err != nil {
		return err
	}
	c.StorageBackend = getEnvString("STORAGE_BACKEND", c.StorageBackend)
	c.DatabaseURL = getEnvString("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = getEnvString("SQLITE_PATH", c.SQLitePath)
	c.BlobPath = getEnvString("BLOB_PATH", c.BlobPath)
	if c.StorageMaxRetries, err = getEnvInt("STORAGE_MAX_RETRIES", c.StorageMaxRetries); err != nil {
		return err
	}
	if c.MaxPackChars, err = getEnvInt("MAX_PACK_CHARS", c.MaxPackChars); err != nil {
		return err
	}
	timeout, err := getEnvDuration("GENERATE_TIMEOUT", time.Duration(c.GenerateTimeout))
	if err != nil {
		return err
	}
	c.GenerateTimeout = Duration(timeout)
	if c.MaxPages, err = getEnvInt("MAX_PAGES", c.MaxPages); err != nil {
		return err
	}
	if c.MaxPhotoBytes, err = getEnvInt("MAX_PHOTO_BYTES", c.MaxPhotoBytes); err != nil {
		return err
	}
	c.ChromePath = getEnvString("CHROME_PATH", c.ChromePath)

	c.Tokens.Secret = getEnvString("SESSION_TOKEN_SECRET", c.Tokens.Secret)
	if c.Tokens.TTLHours, err = getEnvInt("SESSION_TOKEN_TTL_HOURS", c.Tokens.TTLHours); err != nil {
		return err
	}

	rl := &c.RateLimit
	if rl.Enabled, err = getEnvBool("RATE_LIMIT_ENABLED", rl.Enabled); err != nil {
		return err
	}
	if rl.DefaultPerMinute, err = getEnvInt("RATE_LIMIT_DEFAULT_PER_MINUTE", rl.DefaultPerMinute); err != nil {
		return err
	}
	if rl.GeneratePerHour, err = getEnvInt("RATE_LIMIT_GENERATE_PER_HOUR", rl.GeneratePerHour); err != nil {
		return err
	}
	rl.Allowlist = getEnvList("RATE_LIMIT_ALLOWLIST", rl.Allowlist)
	rl.Denylist = getEnvList("RATE_LIMIT_DENYLIST", rl.Denylist)
	return nil
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: port must be in 1..65535, got %d", c.Port)
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config error: SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config error: unknown storage backend %q (want memory, postgres or sqlite)", c.StorageBackend)
	}
	if c.StorageMaxRetries < 1 {
		return fmt.Errorf("config error: storage_max_retries must be at least 1, got %d", c.StorageMaxRetries)
	}
	if c.MaxPackChars < 1000 {
		return fmt.Errorf("config error: max_pack_chars must be at least 1000, got %d", c.MaxPackChars)
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("config error: generate_timeout must be positive")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("config error: max_pages must be at least 1, got %d", c.MaxPages)
	}
	if c.MaxPhotoBytes < 0 {
		return fmt.Errorf("config error: max_photo_bytes must be non-negative")
	}
	if err := c.Tokens.normalize(); err != nil {
		return err
	}
	if c.RateLimit.Enabled && (c.RateLimit.DefaultPerMinute < 0 || c.RateLimit.GeneratePerHour < 0) {
		return fmt.Errorf("config error: rate limits must be non-negative")
	}
	return nil
}

// normalize validates the token configuration.
func (c TokenConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("SESSION_TOKEN_SECRET is required but not set")
	}
	if len(c.Secret) < 32 {
		return fmt.Errorf("SESSION_TOKEN_SECRET must be at least 32 bytes, got %d", len(c.Secret))
	}
	if c.TTLHours < 1 {
		return fmt.Errorf("SESSION_TOKEN_TTL_HOURS must be at least 1 hour, got: %d", c.TTLHours)
	}
	return nil
}

// Limits returns the validation limits with configured overrides applied.
func (c *Config) Limits() validation.Limits {
	l := validation.DefaultLimits()
	l.MaxPages = c.MaxPages
	l.MaxPhotoBytes = c.MaxPhotoBytes
	return l
}

// RateLimiter returns the limiter configuration: the default rules with the
// configured default and generate_pdf limits.
func (c *Config) RateLimiter() *ratelimit.Config {
	rc := ratelimit.DefaultConfig()
	rc.Enabled = c.RateLimit.Enabled
	rc.Default.Limit = c.RateLimit.DefaultPerMinute
	for i := range rc.Rules {
		if rc.Rules[i].Route == ratelimit.ToolRoute("generate_pdf") {
			rc.Rules[i].Limit = c.RateLimit.GeneratePerHour
		}
	}
	for _, ip := range c.RateLimit.Allowlist {
		rc.Allowlist[ip] = true
	}
	for _, ip := range c.RateLimit.Denylist {
		rc.Denylist[ip] = true
	}
	return rc
}
