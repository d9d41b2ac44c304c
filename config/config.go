// Package config provides configuration loading and validation.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	KV        KVConfig        `yaml:"kv"`
	SSRF      SSRFConfig      `yaml:"ssrf"`
	Cache     CacheConfig     `yaml:"cache"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Vault     VaultConfig     `yaml:"vault"`
	Usage     UsageConfig     `yaml:"usage"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the connector/key/secret/usage repository.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite"
	DSN    string `yaml:"dsn"`
}

// KVConfig configures the distributed counter store backing rate limiting
// and quotas (C5).
type KVConfig struct {
	Mode      string   `yaml:"mode"` // "valkey" or "memory"
	Addresses []string `yaml:"addresses"`
}

// SSRFConfig configures C2's host validation.
type SSRFConfig struct {
	ExtraPrivateRanges []string `yaml:"extra_private_ranges"` // additional CIDR blocks to treat as private
}

// CacheConfig configures C4's response cache and C8's config cache.
type CacheConfig struct {
	ResponseMaxEntries int           `yaml:"response_max_entries"`
	ConfigPositiveTTL  time.Duration `yaml:"config_positive_ttl"`
	ConfigNegativeTTL  time.Duration `yaml:"config_negative_ttl"`
}

// BreakerConfig configures C6's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenDuration     time.Duration `yaml:"open_duration"`
}

// RateLimitConfig configures C5's fixed-window limiter.
type RateLimitConfig struct {
	Enabled    bool `yaml:"enabled"`
	WindowSecs int  `yaml:"window_secs"`
}

// AuthConfig configures C9's dual authentication paths.
type AuthConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`     // literal prefix for raw API keys, default "gw_"
	SessionSecret string `yaml:"session_secret"` // HMAC secret for session JWTs
}

// VaultConfig configures C11's secret decryption.
type VaultConfig struct {
	MasterKeyHex string `yaml:"master_key_hex"` // 32 bytes, hex-encoded
}

// UsageConfig configures C16's buffering policy.
type UsageConfig struct {
	Mode          string        `yaml:"mode"` // "immediate" (FaaS) or "buffered" (long-lived)
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file, expanding environment
// variables, applying APIGW_* overrides, filling defaults, and validating.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

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

// applyEnvOverrides applies APIGW_* environment variables. Environment
// variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APIGW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("APIGW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APIGW_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("APIGW_KV_MODE"); v != "" {
		cfg.KV.Mode = v
	}
	if v := os.Getenv("APIGW_KV_ADDRESSES"); v != "" {
		cfg.KV.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("APIGW_AUTH_KEY_PREFIX"); v != "" {
		cfg.Auth.KeyPrefix = v
	}
	if v := os.Getenv("APIGW_AUTH_SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("APIGW_VAULT_MASTER_KEY_HEX"); v != "" {
		cfg.Vault.MasterKeyHex = v
	}
	if v := os.Getenv("APIGW_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("APIGW_USAGE_MODE"); v != "" {
		cfg.Usage.Mode = v
	}
	if v := os.Getenv("APIGW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APIGW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("APIGW_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

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

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "gateway.db"
	}

	if cfg.KV.Mode == "" {
		cfg.KV.Mode = "memory"
	}

	if cfg.Cache.ResponseMaxEntries == 0 {
		cfg.Cache.ResponseMaxEntries = 1000
	}
	if cfg.Cache.ConfigPositiveTTL == 0 {
		cfg.Cache.ConfigPositiveTTL = 60 * time.Second
	}
	if cfg.Cache.ConfigNegativeTTL == 0 {
		cfg.Cache.ConfigNegativeTTL = 5 * time.Second
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.OpenDuration == 0 {
		cfg.Breaker.OpenDuration = 30 * time.Second
	}

	if cfg.RateLimit.WindowSecs == 0 {
		cfg.RateLimit.WindowSecs = 60
	}

	if cfg.Auth.KeyPrefix == "" {
		cfg.Auth.KeyPrefix = "gw_"
	}

	if cfg.Usage.Mode == "" {
		cfg.Usage.Mode = "buffered"
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 5 * time.Second
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
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validKVModes := map[string]bool{"valkey": true, "memory": true}
	if !validKVModes[cfg.KV.Mode] {
		return fmt.Errorf("kv.mode must be 'valkey' or 'memory', got %q", cfg.KV.Mode)
	}
	if cfg.KV.Mode == "valkey" && len(cfg.KV.Addresses) == 0 {
		return fmt.Errorf("kv.addresses is required when kv.mode is 'valkey'")
	}

	validUsageModes := map[string]bool{"immediate": true, "buffered": true}
	if !validUsageModes[cfg.Usage.Mode] {
		return fmt.Errorf("usage.mode must be 'immediate' or 'buffered', got %q", cfg.Usage.Mode)
	}

	if cfg.Vault.MasterKeyHex == "" {
		return fmt.Errorf("vault.master_key_hex is required")
	}
	key, err := hex.DecodeString(cfg.Vault.MasterKeyHex)
	if err != nil {
		return fmt.Errorf("vault.master_key_hex: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("vault.master_key_hex must decode to 32 bytes, got %d", len(key))
	}

	return nil
}
