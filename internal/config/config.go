// Package config loads server configuration from an optional YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// OTLP ingestion listeners.
	OTLPGRPCAddr string `yaml:"otlp_grpc_addr"`
	OTLPHTTPAddr string `yaml:"otlp_http_addr"`

	// Query API listener.
	APIAddr string `yaml:"api_addr"`

	// Profiling listener, loopback by default.
	PprofAddr string `yaml:"pprof_addr"`

	// DatabaseDSN is the SQLite file path or file: URI.
	DatabaseDSN string `yaml:"database_dsn"`

	Verbose bool `yaml:"verbose"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig controls the background retention sweep. A zero
// max-age disables deletion for that signal.
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	TraceMaxAge   time.Duration `yaml:"trace_max_age"`
	MetricMaxAge  time.Duration `yaml:"metric_max_age"`
	LogMaxAge     time.Duration `yaml:"log_max_age"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		OTLPGRPCAddr: "0.0.0.0:4317",
		OTLPHTTPAddr: "0.0.0.0:4318",
		APIAddr:      "0.0.0.0:8080",
		PprofAddr:    "localhost:6060",
		DatabaseDSN:  "otelstore.db",
		Retention: RetentionConfig{
			SweepInterval: time.Hour,
			TraceMaxAge:   7 * 24 * time.Hour,
			MetricMaxAge:  30 * 24 * time.Hour,
			LogMaxAge:     7 * 24 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file when path
// is non-empty, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	cfg.OTLPGRPCAddr = getEnv("OTLP_GRPC_ADDR", cfg.OTLPGRPCAddr)
	cfg.OTLPHTTPAddr = getEnv("OTLP_HTTP_ADDR", cfg.OTLPHTTPAddr)
	cfg.APIAddr = getEnv("API_ADDR", cfg.APIAddr)
	cfg.PprofAddr = getEnv("PPROF_ADDR", cfg.PprofAddr)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.Verbose = getEnvBool("VERBOSE_LOGGING", cfg.Verbose)
	cfg.Retention.Enabled = getEnvBool("RETENTION_ENABLED", cfg.Retention.Enabled)

	return cfg, nil
}

// getEnv gets an environment variable with a default fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
