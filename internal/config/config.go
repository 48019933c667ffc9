package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Leaderboard store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"min=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Leaderboard struct {
		// Store picks the backend; empty selects redis, then postgres, then memory
		// depending on what is configured.
		Store               string `yaml:"store" validate:"omitempty,oneof=memory redis postgres"`
		MaxEntries          int    `yaml:"maxEntries"`
		ShowOnlyBestAttempt *bool  `yaml:"showOnlyBestAttempt"`
		MaxRetries          int    `yaml:"maxRetries" validate:"min=0,max=100"`
		RetryBaseDelay      string `yaml:"retryBaseDelay"`
		RetryMaxDelay       string `yaml:"retryMaxDelay"`
	} `yaml:"leaderboard"`
	Metrics struct {
		Enabled *bool  `yaml:"enabled"`
		Path    string `yaml:"path" validate:"omitempty,startswith=/"`
	} `yaml:"metrics"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the chosen leaderboard store has
// a connection configured.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Leaderboard.Store {
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("invalid config: leaderboard store %q requires redis.addr", c.Leaderboard.Store)
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("invalid config: leaderboard store %q requires postgres.url", c.Leaderboard.Store)
		}
	}
	for _, raw := range []string{c.Catalog.TTL, c.Leaderboard.RetryBaseDelay, c.Leaderboard.RetryMaxDelay} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid config: duration %q: %w", raw, err)
		}
	}
	return nil
}

// LeaderboardStore resolves the backend to use for leaderboards.
func (c Config) LeaderboardStore() string {
	if c.Leaderboard.Store != "" {
		return c.Leaderboard.Store
	}
	switch {
	case c.Redis.Addr != "":
		return StoreRedis
	case c.Postgres.URL != "":
		return StorePostgres
	default:
		return StoreMemory
	}
}

// ShowOnlyBestAttempt defaults to true when unset.
func (c Config) ShowOnlyBestAttempt() bool {
	return BoolOr(c.Leaderboard.ShowOnlyBestAttempt, true)
}

// MetricsEnabled defaults to true when unset.
func (c Config) MetricsEnabled() bool {
	return BoolOr(c.Metrics.Enabled, true)
}

// MetricsPath defaults to /metrics.
func (c Config) MetricsPath() string {
	if c.Metrics.Path == "" {
		return "/metrics"
	}
	return c.Metrics.Path
}

// BoolOr returns *v, or fallback when v is nil.
func BoolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
