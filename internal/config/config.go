package config

import (
	"errors"
	"fmt"
	"os"
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

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProviderConfig struct {
	YooKassa struct {
		ShopID    string `yaml:"shop_id"`
		SecretKey string `yaml:"secret_key"`
		ReturnURL string `yaml:"return_url"`
		BaseURL   string `yaml:"base_url"` // override for sandbox/tests
	} `yaml:"yookassa"`
}

type ReconcilerConfig struct {
	Interval      time.Duration `yaml:"interval"`       // delay between status checks
	MaxAttempts   int           `yaml:"max_attempts"`   // pending checks before timed_out
	ErrorBudget   int           `yaml:"error_budget"`   // consecutive errors before error_exhausted
	StaleAfter    time.Duration `yaml:"stale_after"`    // how old a pending payment must be for the sweep
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often the background sweep runs
	SweepWorkers  int           `yaml:"sweep_workers"`  // pool size for sweep sessions
}

type SecurityConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Provider   ProviderConfig   `yaml:"provider"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = 3 * time.Second
	}
	if cfg.Reconciler.MaxAttempts <= 0 {
		cfg.Reconciler.MaxAttempts = 40
	}
	if cfg.Reconciler.ErrorBudget <= 0 {
		cfg.Reconciler.ErrorBudget = 3
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.SweepInterval <= 0 {
		cfg.Reconciler.SweepInterval = time.Minute
	}
	if cfg.Reconciler.SweepWorkers <= 0 {
		cfg.Reconciler.SweepWorkers = 4
	}
	if cfg.Security.TokenTTL <= 0 {
		cfg.Security.TokenTTL = 30 * time.Minute
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if !dev && cfg.Provider.YooKassa.ShopID == "" {
		return nil, errors.New("provider.yookassa.shop_id is required")
	}
	if !dev && cfg.Security.JWTSecret == "" {
		return nil, errors.New("security.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
