package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.OTLPGRPCAddr != "0.0.0.0:4317" || cfg.OTLPHTTPAddr != "0.0.0.0:4318" {
		t.Errorf("OTLP addrs = %q, %q", cfg.OTLPGRPCAddr, cfg.OTLPHTTPAddr)
	}
	if cfg.DatabaseDSN != "otelstore.db" {
		t.Errorf("dsn = %q", cfg.DatabaseDSN)
	}
	if cfg.Retention.TraceMaxAge != 7*24*time.Hour {
		t.Errorf("trace max age = %v", cfg.Retention.TraceMaxAge)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api_addr: "127.0.0.1:9999"
database_dsn: "/data/telemetry.db"
verbose: true
retention:
  enabled: true
  sweep_interval: 30m
  trace_max_age: 48h
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.APIAddr != "127.0.0.1:9999" {
		t.Errorf("api addr = %q", cfg.APIAddr)
	}
	if cfg.DatabaseDSN != "/data/telemetry.db" || !cfg.Verbose {
		t.Errorf("dsn = %q verbose = %v", cfg.DatabaseDSN, cfg.Verbose)
	}
	if !cfg.Retention.Enabled || cfg.Retention.SweepInterval != 30*time.Minute {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.Retention.TraceMaxAge != 48*time.Hour {
		t.Errorf("trace max age = %v", cfg.Retention.TraceMaxAge)
	}
	// File did not set it; the default survives.
	if cfg.Retention.MetricMaxAge != 30*24*time.Hour {
		t.Errorf("metric max age = %v", cfg.Retention.MetricMaxAge)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("API_ADDR", "0.0.0.0:7070")
	t.Setenv("VERBOSE_LOGGING", "true")
	t.Setenv("DATABASE_DSN", "env.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if cfg.APIAddr != "0.0.0.0:7070" || !cfg.Verbose || cfg.DatabaseDSN != "env.db" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/file.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
