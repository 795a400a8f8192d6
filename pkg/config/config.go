// Package config loads the pipeline configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/edgefeed/edgefeed/pkg/trader/risk"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Markets struct {
		BaseURL   string  `yaml:"base_url"`
		RateLimit float64 `yaml:"rate_limit"`
		Burst     int     `yaml:"burst"`
	} `yaml:"markets"`
	Forecast struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"forecast"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Risk struct {
		InitialCash         float64       `yaml:"initial_cash"`
		MaxPositionFraction float64       `yaml:"max_position_fraction"`
		MaxExposureFraction float64       `yaml:"max_exposure_fraction"`
		MaxDailyDrawdown    float64       `yaml:"max_daily_drawdown"`
		MinEdge             float64       `yaml:"min_edge"`
		MinConfidence       float64       `yaml:"min_confidence"`
		MinLiquidity        float64       `yaml:"min_liquidity"`
		StalenessGrace      time.Duration `yaml:"staleness_grace"`
	} `yaml:"risk"`
	Sizing struct {
		KellyMultiplier float64 `yaml:"kelly_multiplier"`
	} `yaml:"sizing"`
	Scheduler struct {
		Workers   int           `yaml:"workers"`
		ChunkSize int           `yaml:"chunk_size"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"scheduler"`
	Pipeline struct {
		MarketLimit int           `yaml:"market_limit"`
		Interval    time.Duration `yaml:"interval"`
	} `yaml:"pipeline"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("MARKETS_BASE_URL"); v != "" {
		c.Markets.BaseURL = v
	}
	if v := os.Getenv("FORECAST_URL"); v != "" {
		c.Forecast.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Forecast.URL == "" {
		return fmt.Errorf("forecast.url is required")
	}
	if c.Risk.InitialCash <= 0 {
		return fmt.Errorf("risk.initial_cash must be positive")
	}
	if c.Risk.MaxPositionFraction < 0 || c.Risk.MaxPositionFraction > 1 {
		return fmt.Errorf("risk.max_position_fraction must be in [0,1], got %v", c.Risk.MaxPositionFraction)
	}
	if c.Risk.MaxExposureFraction < 0 || c.Risk.MaxExposureFraction > 1 {
		return fmt.Errorf("risk.max_exposure_fraction must be in [0,1], got %v", c.Risk.MaxExposureFraction)
	}
	if c.Risk.MaxDailyDrawdown < 0 || c.Risk.MaxDailyDrawdown > 1 {
		return fmt.Errorf("risk.max_daily_drawdown must be in [0,1], got %v", c.Risk.MaxDailyDrawdown)
	}
	return nil
}

// RiskLimits converts the config risk section into limits, falling back to
// defaults for unset fields.
func (c *Config) RiskLimits() risk.Limits {
	limits := risk.DefaultLimits()
	if c.Risk.MaxPositionFraction > 0 {
		limits.MaxPositionFraction = decimal.NewFromFloat(c.Risk.MaxPositionFraction)
	}
	if c.Risk.MaxExposureFraction > 0 {
		limits.MaxExposureFraction = decimal.NewFromFloat(c.Risk.MaxExposureFraction)
	}
	if c.Risk.MaxDailyDrawdown > 0 {
		limits.MaxDailyDrawdown = decimal.NewFromFloat(c.Risk.MaxDailyDrawdown)
	}
	if c.Risk.MinEdge > 0 {
		limits.MinEdge = decimal.NewFromFloat(c.Risk.MinEdge)
	}
	if c.Risk.MinConfidence > 0 {
		limits.MinConfidence = decimal.NewFromFloat(c.Risk.MinConfidence)
	}
	if c.Risk.MinLiquidity > 0 {
		limits.MinLiquidity = decimal.NewFromFloat(c.Risk.MinLiquidity)
	}
	if c.Risk.StalenessGrace > 0 {
		limits.StalenessGrace = c.Risk.StalenessGrace
	}
	return limits
}
