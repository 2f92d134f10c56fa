package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Environment string `json:"environment" yaml:"environment"`
	APIPrefix   string `json:"api_prefix" yaml:"api_prefix"`
	LogLevel    string `json:"log_level" yaml:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins"`

	// Auth for the HTTP surface
	APIKeyHeader string   `json:"api_key_header" yaml:"api_key_header"`
	APIKeys      []string `json:"api_keys" yaml:"api_keys"`
	EnableAuth   bool     `json:"enable_auth" yaml:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	// Workzone backend
	WorkzoneAPIURL         string `json:"workzone_api_url" yaml:"workzone_api_url"`
	WorkzoneAPIKey         string `json:"workzone_api_key" yaml:"workzone_api_key"`
	TimeoutSeconds         int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetryAttempts       int    `json:"max_retry_attempts" yaml:"max_retry_attempts"`
	RetryDelayMilliseconds int    `json:"retry_delay_ms" yaml:"retry_delay_ms"`

	// Upper bound for a single backoff wait, 0 leaves it uncapped
	RetryMaxDelayMilliseconds int `json:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Circuit breaker
	BreakerFailureThreshold int `json:"breaker_failure_threshold" yaml:"breaker_failure_threshold"`
	BreakerCooldownSeconds  int `json:"breaker_cooldown_seconds" yaml:"breaker_cooldown_seconds"`

	// Outbound requests per second, 0 disables the limiter
	RateLimitPerSecond float64 `json:"rate_limit_per_second" yaml:"rate_limit_per_second"`

	EnableAuditLogging bool `json:"enable_audit_logging" yaml:"enable_audit_logging"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:                      DefaultHost,
		Port:                      DefaultPort,
		Environment:               DefaultEnvironment,
		APIPrefix:                 DefaultAPIPrefix,
		LogLevel:                  DefaultLogLevel,
		CORSOrigins:               DefaultCORSOrigins,
		APIKeyHeader:              "X-API-Key",
		EnableAuth:                true,
		RateLimitPerMinute:        DefaultRateLimitPerMinute,
		WorkzoneAPIURL:            DefaultWorkzoneAPIURL,
		TimeoutSeconds:            DefaultTimeoutSeconds,
		MaxRetryAttempts:          DefaultMaxRetryAttempts,
		RetryDelayMilliseconds:    DefaultRetryDelayMilliseconds,
		RetryMaxDelayMilliseconds: DefaultRetryMaxDelayMilliseconds,
		BreakerFailureThreshold:   DefaultBreakerFailureThreshold,
		BreakerCooldownSeconds:    DefaultBreakerCooldownSeconds,
		EnableAuditLogging:        true,
	}

	// Load from config file if specified
	if path := getEnv("WORKZONE_CONFIG", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the core treats as constructor inputs.
func (c *Config) Validate() error {
	u, err := url.Parse(c.WorkzoneAPIURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("workzone_api_url must be an absolute URL, got %q", c.WorkzoneAPIURL)
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must not be negative, got %d", c.MaxRetryAttempts)
	}
	if c.RetryDelayMilliseconds < 0 {
		return fmt.Errorf("retry_delay_ms must not be negative, got %d", c.RetryDelayMilliseconds)
	}
	if c.RetryMaxDelayMilliseconds < 0 {
		return fmt.Errorf("retry_max_delay_ms must not be negative, got %d", c.RetryMaxDelayMilliseconds)
	}
	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("breaker_failure_threshold must be positive, got %d", c.BreakerFailureThreshold)
	}
	if c.BreakerCooldownSeconds < 0 {
		return fmt.Errorf("breaker_cooldown_seconds must not be negative, got %d", c.BreakerCooldownSeconds)
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate_limit_per_second must not be negative, got %v", c.RateLimitPerSecond)
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMilliseconds) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMilliseconds) * time.Millisecond
}

func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("WORKZONE_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("WORKZONE_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("WORKZONE_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("WORKZONE_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("WORKZONE_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUDIT_LOGGING", ""); v != "" {
		cfg.EnableAuditLogging = v == "true" || v == "1"
	}

	// Backend settings accept both the WORKZONE_* names and the App__* names
	// used by earlier deployments.
	if v := firstEnv("WORKZONE_API_URL", "App__WorkzoneApiUrl"); v != "" {
		cfg.WorkzoneAPIURL = v
	}
	if v := firstEnv("WORKZONE_API_KEY", "App__WorkzoneApiKey"); v != "" {
		cfg.WorkzoneAPIKey = v
	}
	if v := firstEnv("WORKZONE_TIMEOUT_SECONDS", "App__TimeoutSeconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}
	if v := firstEnv("WORKZONE_MAX_RETRY_ATTEMPTS", "App__MaxRetryAttempts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetryAttempts = n
		}
	}
	if v := firstEnv("WORKZONE_RETRY_DELAY_MS", "App__RetryDelayMilliseconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryDelayMilliseconds = n
		}
	}
	if v := getEnv("WORKZONE_RETRY_MAX_DELAY_MS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryMaxDelayMilliseconds = n
		}
	}
	if v := getEnv("WORKZONE_BREAKER_FAILURE_THRESHOLD", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BreakerFailureThreshold = n
		}
	}
	if v := getEnv("WORKZONE_BREAKER_COOLDOWN_SECONDS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BreakerCooldownSeconds = n
		}
	}
	if v := getEnv("WORKZONE_RATE_LIMIT_PER_SECOND", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitPerSecond = f
		}
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := getEnv(k, ""); v != "" {
			return v
		}
	}
	return ""
}
