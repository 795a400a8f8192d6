package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const validYAML = `
environment: test
server:
  port: 9090
  read_timeout: 5s
  write_timeout: 5s
  shutdown_timeout: 20s
metrics:
  enabled: true
  path: /metrics
forecast:
  url: http://localhost:9000
  timeout: 15s
risk:
  initial_cash: 10000
  max_position_fraction: 0.10
  max_exposure_fraction: 0.50
  max_daily_drawdown: 0.20
  min_edge: 0.05
  min_confidence: 0.55
  min_liquidity: 500
  staleness_grace: 24h
scheduler:
  workers: 3
  chunk_size: 8
  timeout: 30s
pipeline:
  market_limit: 20
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Environment != "test" {
		t.Errorf("Expected environment test, got %s", cfg.Environment)
	}
	if cfg.Forecast.Timeout != 15*time.Second {
		t.Errorf("Expected forecast timeout 15s, got %s", cfg.Forecast.Timeout)
	}
	if cfg.Scheduler.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", cfg.Scheduler.Workers)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected server port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 20*time.Second {
		t.Errorf("Expected shutdown timeout 20s, got %s", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Expected metrics enabled at /metrics, got enabled=%v path=%s", cfg.Metrics.Enabled, cfg.Metrics.Path)
	}
}

func TestLoad_MissingEnvironment(t *testing.T) {
	if _, err := Load(writeConfig(t, "forecast:\n  url: http://x\nrisk:\n  initial_cash: 100\n")); err == nil {
		t.Error("Missing environment should fail validation")
	}
}

func TestLoad_MissingForecastURL(t *testing.T) {
	if _, err := Load(writeConfig(t, "environment: test\nrisk:\n  initial_cash: 100\n")); err == nil {
		t.Error("Missing forecast.url should fail validation")
	}
}

func TestLoad_BadFraction(t *testing.T) {
	yaml := `
environment: test
forecast:
  url: http://x
risk:
  initial_cash: 100
  max_position_fraction: 1.5
`
	if _, err := Load(writeConfig(t, yaml)); err == nil {
		t.Error("Fraction above 1 should fail validation")
	}
}

func TestLoadWithEnv_Overrides(t *testing.T) {
	t.Setenv("FORECAST_URL", "http://override:9999")
	t.Setenv("DATABASE_DSN", "postgres://override/db")

	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv failed: %v", err)
	}
	if cfg.Forecast.URL != "http://override:9999" {
		t.Errorf("Env should override forecast URL, got %s", cfg.Forecast.URL)
	}
	if cfg.Database.DSN != "postgres://override/db" {
		t.Errorf("Env should override DSN, got %s", cfg.Database.DSN)
	}
}

func TestRiskLimits_FromConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	limits := cfg.RiskLimits()
	if !limits.MaxPositionFraction.Equal(decimal.NewFromFloat(0.10)) {
		t.Errorf("Expected 0.10, got %s", limits.MaxPositionFraction)
	}
	if !limits.MinLiquidity.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected 500, got %s", limits.MinLiquidity)
	}
	if limits.StalenessGrace != 24*time.Hour {
		t.Errorf("Expected 24h, got %s", limits.StalenessGrace)
	}
}

func TestRiskLimits_DefaultsForUnsetFields(t *testing.T) {
	yaml := `
environment: test
forecast:
  url: http://x
risk:
  initial_cash: 100
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	limits := cfg.RiskLimits()
	if !limits.MinEdge.Equal(decimal.NewFromFloat(0.05)) {
		t.Errorf("Unset min_edge should default to 0.05, got %s", limits.MinEdge)
	}
	if limits.StalenessGrace != 24*time.Hour {
		t.Errorf("Unset staleness_grace should default to 24h, got %s", limits.StalenessGrace)
	}
}
