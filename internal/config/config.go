package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "QUOTAGATE_CONFIG"

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

// Limit is one bucket shape: tokens per second plus burst capacity.
type Limit struct {
	RefillRate float64 `yaml:"refill_rate"`
	Capacity   float64 `yaml:"capacity"`
}

// Seed pre-configures a key before the first request references it.
type Seed struct {
	Key        string  `yaml:"key"`
	RefillRate float64 `yaml:"refill_rate"`
	Capacity   float64 `yaml:"capacity"`
}

type Limits struct {
	Default Limit  `yaml:"default"`
	Seeds   []Seed `yaml:"seeds"`
}

type AdminKey struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

// Admin guards the configure endpoint. An empty key list leaves it open,
// which is only sensible for local development.
type Admin struct {
	Header string     `yaml:"header"`
	Keys   []AdminKey `yaml:"keys"`
}

type Janitor struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMS int  `yaml:"interval_ms"`
	IdleTTLMS  int  `yaml:"idle_ttl_ms"`
}

type RedisStats struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Stats struct {
	Redis RedisStats `yaml:"redis"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Limits        Limits        `yaml:"limits"`
	Admin         Admin         `yaml:"admin"`
	Janitor       Janitor       `yaml:"janitor"`
	Stats         Stats         `yaml:"stats"`
	WatchConfig   bool          `yaml:"watch_config"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

func (s Server) MaxBody() int64 {
	if s.MaxBodyBytes == 0 {
		return 1 << 20
	}
	return s.MaxBodyBytes
} // default 1MB, requests are small JSON documents

func (j Janitor) Interval() time.Duration {
	if j.IntervalMS <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(j.IntervalMS) * time.Millisecond
}

func (j Janitor) IdleTTL() time.Duration {
	if j.IdleTTLMS <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(j.IdleTTLMS) * time.Millisecond
}

// ResolvePath normalizes a config path, falling back to the env override
// and then to ./config.yaml.
func ResolvePath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Admin.Header == "" {
		cfg.Admin.Header = "X-Admin-Key"
	}
	if cfg.Limits.Default.RefillRate <= 0 {
		cfg.Limits.Default.RefillRate = 20
	}
	if cfg.Limits.Default.Capacity <= 0 {
		cfg.Limits.Default.Capacity = 50
	}
	if cfg.Stats.Redis.Addr == "" {
		cfg.Stats.Redis.Addr = "localhost:6379"
	}
	if cfg.Stats.Redis.Prefix == "" {
		cfg.Stats.Redis.Prefix = "quotagate:stats"
	}

	return &cfg, nil
}
