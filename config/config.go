// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names resolve without system zoneinfo

	"github.com/artpar/bundlekeeper/domain/bundle"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "bundlekeeper.yaml"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Provider  ProviderConfig  `yaml:"provider"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retention RetentionConfig `yaml:"retention"`

	// Bundle seeds the runtime config on first start. Later changes go
	// through the config API and are stored in the database.
	Bundle bundle.Config `yaml:"bundle"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	APIKey          string        `yaml:"api_key,omitempty"`      // Plaintext operator key
	APIKeyHash      string        `yaml:"api_key_hash,omitempty"` // bcrypt hash, preferred over api_key
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path or ":memory:"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "console"
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// ProviderConfig configures the replenishment provider client.
// Credentials set through the config API take precedence.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserID     string        `yaml:"user_id,omitempty"`
	Token      string        `yaml:"token,omitempty"`
	UserAgent  string        `yaml:"user_agent,omitempty"`
	Zone       string        `yaml:"zone,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// SchedulerConfig configures the background check loop.
type SchedulerConfig struct {
	ResyncInterval       time.Duration `yaml:"resync_interval"`
	StopTimeout          time.Duration `yaml:"stop_timeout"`
	TriggerMinInterval   time.Duration `yaml:"trigger_min_interval"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
	Timezone             string        `yaml:"timezone,omitempty"` // IANA name; empty means local time
}

// Location returns the timezone used for the daily reset.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// RetentionConfig bounds table growth. Zero keeps records forever.
type RetentionConfig struct {
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	UsageEventsTTL time.Duration `yaml:"usage_events_ttl"`
	LogsTTL        time.Duration `yaml:"logs_ttl"`
}

// preset returns a config with the defaults that cannot be told apart from
// explicit zero values after parsing.
func preset() Config {
	return Config{
		Metrics: MetricsConfig{Enabled: true},
		Bundle:  bundle.Defaults(),
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := preset()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	BUNDLEKEEPER_SERVER_HOST        - Server host (default: 0.0.0.0)
//	BUNDLEKEEPER_SERVER_PORT        - Server port (default: 8080; PORT also accepted)
//	BUNDLEKEEPER_API_KEY            - Operator API key (API_KEY also accepted)
//	BUNDLEKEEPER_API_KEY_HASH       - bcrypt hash of the operator API key
//	BUNDLEKEEPER_DATABASE_DSN       - Database path (default: bundlekeeper.db; APP_DB_PATH also accepted)
//	BUNDLEKEEPER_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	BUNDLEKEEPER_LOG_FORMAT         - Log format: json or console (default: json)
//	BUNDLEKEEPER_LOG_FILE           - Rotated log file (default: stdout only)
//	BUNDLEKEEPER_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
//	BUNDLEKEEPER_PROVIDER_BASE_URL  - Provider API base URL
//	BUNDLEKEEPER_PROVIDER_USER_ID   - Provider user ID (ODIDO_USER_ID also accepted)
//	BUNDLEKEEPER_PROVIDER_TOKEN     - Provider token (ODIDO_TOKEN also accepted)
//	BUNDLEKEEPER_TIMEZONE           - Daily reset timezone (default: local)
func LoadFromEnv() (*Config, error) {
	cfg := preset()

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when it exists, otherwise from the
// environment alone.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// env returns the first non-empty value among the named variables.
func env(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// applyEnvOverrides applies BUNDLEKEEPER_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := env("BUNDLEKEEPER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := env("BUNDLEKEEPER_SERVER_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("BUNDLEKEEPER_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := env("BUNDLEKEEPER_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}
	if v := env("BUNDLEKEEPER_API_KEY", "API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := env("BUNDLEKEEPER_API_KEY_HASH"); v != "" {
		cfg.Server.APIKeyHash = v
	}

	// Database configuration
	if v := env("BUNDLEKEEPER_DATABASE_DSN", "APP_DB_PATH"); v != "" {
		cfg.Database.DSN = v
	}

	// Logging configuration
	if v := env("BUNDLEKEEPER_LOG_LEVEL", "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env("BUNDLEKEEPER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := env("BUNDLEKEEPER_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}

	// Metrics configuration
	if v := env("BUNDLEKEEPER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := env("BUNDLEKEEPER_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Provider configuration
	if v := env("BUNDLEKEEPER_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := env("BUNDLEKEEPER_PROVIDER_USER_ID", "ODIDO_USER_ID"); v != "" {
		cfg.Provider.UserID = v
	}
	if v := env("BUNDLEKEEPER_PROVIDER_TOKEN", "ODIDO_TOKEN"); v != "" {
		cfg.Provider.Token = v
	}
	if v := env("BUNDLEKEEPER_PROVIDER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Provider.Timeout = d
		}
	}

	// Scheduler configuration
	if v := env("BUNDLEKEEPER_TIMEZONE"); v != "" {
		cfg.Scheduler.Timezone = v
	}
	if v := env("BUNDLEKEEPER_RESYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.ResyncInterval = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "bundlekeeper.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 50
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 10 * time.Second
	}
	if cfg.Provider.MaxRetries == 0 {
		cfg.Provider.MaxRetries = 3
	}

	if cfg.Scheduler.ResyncInterval == 0 {
		cfg.Scheduler.ResyncInterval = 300 * time.Second
	}
	if cfg.Scheduler.StopTimeout == 0 {
		cfg.Scheduler.StopTimeout = 5 * time.Second
	}
	if cfg.Scheduler.TriggerMinInterval == 0 {
		cfg.Scheduler.TriggerMinInterval = 10 * time.Second
	}
	if cfg.Scheduler.HousekeepingInterval == 0 {
		cfg.Scheduler.HousekeepingInterval = 24 * time.Hour
	}

	if cfg.Retention.IdempotencyTTL == 0 {
		cfg.Retention.IdempotencyTTL = 30 * 24 * time.Hour
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	if cfg.Provider.MaxRetries < 0 {
		return fmt.Errorf("provider.max_retries must not be negative")
	}

	if _, err := cfg.Scheduler.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}

	if cfg.Retention.IdempotencyTTL < 0 || cfg.Retention.UsageEventsTTL < 0 || cfg.Retention.LogsTTL < 0 {
		return fmt.Errorf("retention values must not be negative")
	}

	if err := cfg.Bundle.Validate(); err != nil {
		return fmt.Errorf("bundle: %w", err)
	}

	return nil
}
