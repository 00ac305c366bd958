// Package config loads server and CLI configuration from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileEnv names the variable holding the YAML config path.
const FileEnv = "TRADEGATE_CONFIG"

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
)

// Config holds TradeGate configuration.
type Config struct {
	Port         string `yaml:"port"`
	PublicOrigin string `yaml:"public_origin"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`

	// AuthProviderURL is the GoTrue base URL. Empty selects the built-in
	// in-memory provider, meant for local development.
	AuthProviderURL      string `yaml:"auth_provider_url"`
	AuthPublicKey        string `yaml:"auth_public_key"`
	AuthExternalProvider string `yaml:"auth_external_provider"`

	CalcServiceURL string        `yaml:"calc_service_url"`
	CalcTimeout    time.Duration `yaml:"calc_timeout"`

	SessionStore    string        `yaml:"session_store"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	SessionBoltPath string        `yaml:"session_bolt_path"`
	SessionTTL      time.Duration `yaml:"session_ttl"`

	HistoryDSN string `yaml:"history_dsn"`

	CORSOrigins   []string `yaml:"cors_origins"`
	AuthRateRPS   float64  `yaml:"auth_rate_rps"`
	AuthRateBurst int      `yaml:"auth_rate_burst"`
	SecureCookies bool     `yaml:"secure_cookies"`

	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelInsecure bool   `yaml:"otel_insecure"`
}

// Default returns the development defaults.
func Default() *Config {
	return &Config{
		Port:                 "8080",
		PublicOrigin:         "http://localhost:8080",
		LogLevel:             "INFO",
		LogFormat:            "text",
		AuthExternalProvider: "google",
		CalcServiceURL:       "http://localhost:5000",
		CalcTimeout:          30 * time.Second,
		SessionStore:         StoreMemory,
		SessionTTL:           30 * 24 * time.Hour,
		AuthRateRPS:          5,
		AuthRateBurst:        10,
		OTelEndpoint:         "localhost:4317",
		OTelInsecure:         true,
	}
}

// Load builds a Config from defaults, then the YAML file at path (or at
// $TRADEGATE_CONFIG when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
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

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Port)
	str("PUBLIC_ORIGIN", &c.PublicOrigin)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("AUTH_PROVIDER_URL", &c.AuthProviderURL)
	str("AUTH_PUBLIC_KEY", &c.AuthPublicKey)
	str("AUTH_EXTERNAL_PROVIDER", &c.AuthExternalProvider)
	str("CALC_SERVICE_URL", &c.CalcServiceURL)
	str("SESSION_STORE", &c.SessionStore)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	str("SESSION_BOLT_PATH", &c.SessionBoltPath)
	str("HISTORY_DSN", &c.HistoryDSN)
	str("OTEL_ENDPOINT", &c.OTelEndpoint)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}

	for _, set := range []error{
		envDuration("CALC_TIMEOUT", &c.CalcTimeout),
		envDuration("SESSION_TTL", &c.SessionTTL),
		envInt("REDIS_DB", &c.RedisDB),
		envFloat("AUTH_RATE_RPS", &c.AuthRateRPS),
		envInt("AUTH_RATE_BURST", &c.AuthRateBurst),
		envBool("OTEL_ENABLED", &c.OTelEnabled),
		envBool("OTEL_INSECURE", &c.OTelInsecure),
		envBool("SECURE_COOKIES", &c.SecureCookies),
	} {
		if set != nil {
			return set
		}
	}
	return nil
}

func envErr(key, v string, err error) error {
	return fmt.Errorf("invalid %s=%q: %w", key, v, err)
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return envErr(key, v, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return envErr(key, v, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return envErr(key, v, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return envErr(key, v, err)
	}
	*dst = b
	return nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.SessionStore {
	case StoreMemory, StoreBolt:
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("SESSION_STORE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown session store %q", c.SessionStore)
	}
	if c.SessionStore == StoreBolt && c.SessionBoltPath == "" {
		return fmt.Errorf("SESSION_STORE=bolt requires SESSION_BOLT_PATH")
	}
	if c.AuthProviderURL != "" && c.AuthPublicKey == "" {
		return fmt.Errorf("AUTH_PROVIDER_URL requires AUTH_PUBLIC_KEY")
	}
	if c.CalcServiceURL == "" {
		return fmt.Errorf("CALC_SERVICE_URL must not be empty")
	}
	if c.AuthRateRPS <= 0 || c.AuthRateBurst <= 0 {
		return fmt.Errorf("auth rate limit must be positive")
	}
	return nil
}

// Addr is the listen address for Port.
func (c *Config) Addr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

// DevAuth reports whether the in-memory identity provider is used.
func (c *Config) DevAuth() bool { return c.AuthProviderURL == "" }
