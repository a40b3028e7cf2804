// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/personahire/tokenmeter/domain/policy"
	"github.com/personahire/tokenmeter/domain/pricing"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Storage   StorageConfig          `yaml:"storage"`
	Limits    LimitsConfig           `yaml:"limits"`
	Pricing   map[string]PriceConfig `yaml:"pricing"`
	Retention RetentionConfig        `yaml:"retention"`
	Logging   LoggingConfig          `yaml:"logging"`
	Metrics   MetricsConfig          `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig configures the snapshot store.
// Use "sqlite" for durable storage or "memory" for ephemeral runs.
type StorageConfig struct {
	Driver      string        `yaml:"driver"` // "sqlite" or "memory"
	DSN         string        `yaml:"dsn"`
	MaxEvents   int           `yaml:"max_events"`   // persisted event cap; 0 = unlimited
	SaveTimeout time.Duration `yaml:"save_timeout"` // snapshot write deadline
}

// LimitsConfig configures the quota thresholds. A zero value disables the
// corresponding check; an empty allow-list admits every category.
type LimitsConfig struct {
	PerRequestUnits   int64         `yaml:"per_request_units"`
	DailyUnits        int64         `yaml:"daily_units"`
	ShortWindowUnits  int64         `yaml:"short_window_units"`
	ShortWindow       time.Duration `yaml:"short_window"`
	CostWarning       float64       `yaml:"cost_warning"`
	CostLimit         float64       `yaml:"cost_limit"`
	AllowedCategories []string      `yaml:"allowed_categories"`
}

// PriceConfig configures the price of one category. Token-billed
// categories set input/output rates; character-billed categories set the
// flat rate.
type PriceConfig struct {
	InputPerThousand  float64 `yaml:"input_per_thousand"`
	OutputPerThousand float64 `yaml:"output_per_thousand"`
	PerThousand       float64 `yaml:"per_thousand"`
}

// RetentionConfig configures the data retention sweep. Days defaults to
// 30 when unset; a negative value disables the sweep entirely.
type RetentionConfig struct {
	Days          int           `yaml:"days"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: /metrics
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	TOKENMETER_SERVER_HOST          - Server host (default: 0.0.0.0)
//	TOKENMETER_SERVER_PORT          - Server port (default: 8080)
//	TOKENMETER_STORAGE_DRIVER       - Storage driver: sqlite or memory (default: sqlite)
//	TOKENMETER_STORAGE_DSN          - SQLite path (default: tokenmeter.db)
//	TOKENMETER_LIMITS_DAILY_UNITS   - Daily unit cap (0 disables)
//	TOKENMETER_LIMITS_COST_LIMIT    - Daily cost hard limit (0 disables)
//	TOKENMETER_RETENTION_DAYS       - Retention horizon in days (negative disables)
//	TOKENMETER_LOG_LEVEL            - Log level: debug, info, warn, error (default: info)
//	TOKENMETER_LOG_FORMAT           - Log format: json or console (default: json)
//	TOKENMETER_METRICS_ENABLED      - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// Thresholds converts the limits section into the policy engine's form.
func (c *Config) Thresholds() policy.Thresholds {
	return policy.Thresholds{
		PerRequestUnits:   c.Limits.PerRequestUnits,
		DailyUnits:        c.Limits.DailyUnits,
		ShortWindowUnits:  c.Limits.ShortWindowUnits,
		ShortWindow:       c.Limits.ShortWindow,
		CostWarning:       c.Limits.CostWarning,
		CostLimit:         c.Limits.CostLimit,
		AllowedCategories: c.Limits.AllowedCategories,
	}
}

// PricingTable merges the configured prices on top of the built-in table.
func (c *Config) PricingTable() pricing.Table {
	overlay := make(pricing.Table, len(c.Pricing))
	for name, p := range c.Pricing {
		overlay[name] = pricing.Price{
			InputPerThousand:  p.InputPerThousand,
			OutputPerThousand: p.OutputPerThousand,
			PerThousand:       p.PerThousand,
		}
	}
	return pricing.Merge(pricing.Default(), overlay)
}

// applyEnvOverrides applies TOKENMETER_* environment variables to the
// config. Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TOKENMETER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TOKENMETER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TOKENMETER_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("TOKENMETER_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("TOKENMETER_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("TOKENMETER_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("TOKENMETER_STORAGE_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxEvents = n
		}
	}

	if v := os.Getenv("TOKENMETER_LIMITS_PER_REQUEST_UNITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.PerRequestUnits = n
		}
	}
	if v := os.Getenv("TOKENMETER_LIMITS_DAILY_UNITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.DailyUnits = n
		}
	}
	if v := os.Getenv("TOKENMETER_LIMITS_SHORT_WINDOW_UNITS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Limits.ShortWindowUnits = n
		}
	}
	if v := os.Getenv("TOKENMETER_LIMITS_SHORT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Limits.ShortWindow = d
		}
	}
	if v := os.Getenv("TOKENMETER_LIMITS_COST_WARNING"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.CostWarning = f
		}
	}
	if v := os.Getenv("TOKENMETER_LIMITS_COST_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.CostLimit = f
		}
	}

	if v := os.Getenv("TOKENMETER_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retention.Days = n
		}
	}
	if v := os.Getenv("TOKENMETER_RETENTION_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retention.SweepInterval = d
		}
	}

	if v := os.Getenv("TOKENMETER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TOKENMETER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("TOKENMETER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TOKENMETER_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
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

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tokenmeter.db"
	}
	if cfg.Storage.MaxEvents == 0 {
		cfg.Storage.MaxEvents = 1000
	}
	if cfg.Storage.SaveTimeout == 0 {
		cfg.Storage.SaveTimeout = 2 * time.Second
	}

	if cfg.Limits.ShortWindow == 0 {
		cfg.Limits.ShortWindow = policy.DefaultShortWindow
	}

	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.SweepInterval == 0 {
		cfg.Retention.SweepInterval = time.Hour
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Storage.Driver] {
		return fmt.Errorf("storage.driver must be 'sqlite' or 'memory', got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required when storage.driver is 'sqlite'")
	}

	if cfg.Limits.PerRequestUnits < 0 {
		return fmt.Errorf("limits.per_request_units must not be negative")
	}
	if cfg.Limits.DailyUnits < 0 {
		return fmt.Errorf("limits.daily_units must not be negative")
	}
	if cfg.Limits.ShortWindowUnits < 0 {
		return fmt.Errorf("limits.short_window_units must not be negative")
	}
	if cfg.Limits.CostWarning < 0 || cfg.Limits.CostLimit < 0 {
		return fmt.Errorf("limits cost thresholds must not be negative")
	}
	if cfg.Limits.CostWarning > 0 && cfg.Limits.CostLimit > 0 && cfg.Limits.CostWarning > cfg.Limits.CostLimit {
		return fmt.Errorf("limits.cost_warning must not exceed limits.cost_limit")
	}

	for name, p := range cfg.Pricing {
		if p.InputPerThousand < 0 || p.OutputPerThousand < 0 || p.PerThousand < 0 {
			return fmt.Errorf("pricing[%s]: rates must not be negative", name)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
