// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AppConfig struct {
	// BaseURL is the canonical public origin; redirect URLs are built from it, never from request headers.
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionConfig struct {
	Secret     string `yaml:"secret"`
	CookieName string `yaml:"cookie_name"`
}

type EsewaConfig struct {
	ProductCode   string        `yaml:"product_code"`
	SecretKey     string        `yaml:"secret_key"`
	Environment   string        `yaml:"environment"` // production | sandbox | auto
	StatusTimeout time.Duration `yaml:"status_timeout"`
}

type RateLimitConfig struct {
	Backend string `yaml:"backend"` // memory | redis
}

type PaymentConfig struct {
	Esewa     EsewaConfig     `yaml:"esewa"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type WorkersConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	ExpiryInterval   time.Duration `yaml:"expiry_interval"`
	PlanSyncWorkers  int           `yaml:"plan_sync_workers"`
	PlanSyncAttempts int           `yaml:"plan_sync_attempts"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Payment  PaymentConfig  `yaml:"payment"`
	Workers  WorkersConfig  `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is allowed when the
// environment supplies everything), applies environment overrides, defaults,
// and minimal validation.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("session.secret is required")
	}
	if cfg.App.BaseURL == "" {
		return nil, errors.New("app.base_url is required")
	}
	switch cfg.Payment.RateLimit.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.URL == "" {
			return nil, errors.New("redis.url is required for the redis rate limit backend")
		}
	default:
		return nil, fmt.Errorf("payment.rate_limit.backend %q is not supported", cfg.Payment.RateLimit.Backend)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "session"
	}
	if cfg.Payment.Esewa.Environment == "" {
		cfg.Payment.Esewa.Environment = "auto"
	}
	if cfg.Payment.Esewa.StatusTimeout <= 0 {
		cfg.Payment.Esewa.StatusTimeout = 5 * time.Second
	}
	cfg.Payment.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.Payment.RateLimit.Backend))
	if cfg.Payment.RateLimit.Backend == "" {
		cfg.Payment.RateLimit.Backend = "memory"
		if cfg.Redis.URL != "" {
			cfg.Payment.RateLimit.Backend = "redis"
		}
	}
	if cfg.Workers.SweepInterval <= 0 {
		cfg.Workers.SweepInterval = time.Minute
	}
	if cfg.Workers.ExpiryInterval <= 0 {
		cfg.Workers.ExpiryInterval = time.Hour
	}
	if cfg.Workers.PlanSyncWorkers <= 0 {
		cfg.Workers.PlanSyncWorkers = 2
	}
	if cfg.Workers.PlanSyncAttempts <= 0 {
		cfg.Workers.PlanSyncAttempts = 3
	}
}

// applyEnv overrides file values with environment variables when they are set.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DATABASE_URL":       &cfg.Database.URL,
		"REDIS_URL":          &cfg.Redis.URL,
		"SESSION_SECRET":     &cfg.Session.Secret,
		"APP_BASE_URL":       &cfg.App.BaseURL,
		"ESEWA_PRODUCT_CODE": &cfg.Payment.Esewa.ProductCode,
		"ESEWA_SECRET_KEY":   &cfg.Payment.Esewa.SecretKey,
		"ESEWA_ENVIRONMENT":  &cfg.Payment.Esewa.Environment,
		"LOG_LEVEL":          &cfg.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup("HTTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("HTTP_PORT %q is not a valid port", v)
		}
		cfg.HTTP.Port = port
	}
	return nil
}
