package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.Observability.PrometheusPath != "/metrics" {
		t.Errorf("prometheus path = %q, want /metrics", cfg.Observability.PrometheusPath)
	}
	if cfg.Admin.Header != "X-Admin-Key" {
		t.Errorf("admin header = %q, want X-Admin-Key", cfg.Admin.Header)
	}
	if cfg.Limits.Default.RefillRate != 20 || cfg.Limits.Default.Capacity != 50 {
		t.Errorf("default limit = %+v, want rate 20 capacity 50", cfg.Limits.Default)
	}
	if cfg.Stats.Redis.Prefix != "quotagate:stats" {
		t.Errorf("redis prefix = %q", cfg.Stats.Redis.Prefix)
	}
	if cfg.Server.ReadTimeout() != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout())
	}
	if cfg.Server.MaxBody() != 1<<20 {
		t.Errorf("max body = %d", cfg.Server.MaxBody())
	}
	if cfg.Janitor.Interval() != 2*time.Minute || cfg.Janitor.IdleTTL() != 15*time.Minute {
		t.Errorf("janitor defaults = %v/%v", cfg.Janitor.Interval(), cfg.Janitor.IdleTTL())
	}
}

func TestLoad_FullDocument(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9090"
  read_timeout_ms: 2500
  max_body_bytes: 4096
observability:
  log_level: debug
limits:
  default:
    refill_rate: 8
    capacity: 16
  seeds:
    - key: flags_list
      refill_rate: 10
      capacity: 100
    - key: flag_write
      refill_rate: 5
      capacity: 50
admin:
  header: X-Ops-Key
  keys:
    - id: ops
      secret: hunter2
janitor:
  enabled: true
  interval_ms: 60000
  idle_ttl_ms: 300000
stats:
  redis:
    enabled: true
    addr: "redis:6379"
    db: 3
watch_config: true
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout() != 2500*time.Millisecond {
		t.Errorf("read timeout = %v", cfg.Server.ReadTimeout())
	}
	if cfg.Server.MaxBody() != 4096 {
		t.Errorf("max body = %d", cfg.Server.MaxBody())
	}
	if cfg.Limits.Default.RefillRate != 8 || cfg.Limits.Default.Capacity != 16 {
		t.Errorf("default limit = %+v", cfg.Limits.Default)
	}
	if len(cfg.Limits.Seeds) != 2 {
		t.Fatalf("seeds = %d, want 2", len(cfg.Limits.Seeds))
	}
	if s := cfg.Limits.Seeds[0]; s.Key != "flags_list" || s.RefillRate != 10 || s.Capacity != 100 {
		t.Errorf("seed[0] = %+v", s)
	}
	if cfg.Admin.Header != "X-Ops-Key" || len(cfg.Admin.Keys) != 1 || cfg.Admin.Keys[0].Secret != "hunter2" {
		t.Errorf("admin = %+v", cfg.Admin)
	}
	if !cfg.Janitor.Enabled || cfg.Janitor.Interval() != time.Minute || cfg.Janitor.IdleTTL() != 5*time.Minute {
		t.Errorf("janitor = %+v", cfg.Janitor)
	}
	if !cfg.Stats.Redis.Enabled || cfg.Stats.Redis.Addr != "redis:6379" || cfg.Stats.Redis.DB != 3 {
		t.Errorf("redis stats = %+v", cfg.Stats.Redis)
	}
	if !cfg.WatchConfig {
		t.Error("watch_config not parsed")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "server: [not a map\n")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolvePath(t *testing.T) {
	got := ResolvePath("  ./some/where.yaml  ")
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, filepath.Join("some", "where.yaml")) {
		t.Errorf("ResolvePath explicit = %q", got)
	}

	t.Setenv(EnvConfigPath, "/etc/quotagate/config.yaml")
	if got := ResolvePath(""); got != "/etc/quotagate/config.yaml" {
		t.Errorf("ResolvePath env = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); !strings.HasSuffix(got, "config.yaml") {
		t.Errorf("ResolvePath fallback = %q", got)
	}
}

func TestWatch_FiresAfterWrite(t *testing.T) {
	path := writeConfig(t, "watch_config: true\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 1)
	if err := Watch(ctx, path, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("watch_config: false\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("onChange never fired after write")
	}
}
