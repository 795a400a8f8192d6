// Package risk defines the risk limit configuration shared by the
// evaluator, the stake sizer and the ledger.
package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// Limits defines the risk parameters for the signal pipeline.
type Limits struct {
	// Position limits, as fractions of the portfolio
	MaxPositionFraction decimal.Decimal // Max single position as fraction of cash
	MaxExposureFraction decimal.Decimal // Max total exposure as fraction of portfolio value

	// Daily limits
	MaxDailyDrawdown decimal.Decimal // Daily loss fraction that trips the circuit breaker

	// Signal acceptance thresholds
	MinEdge       decimal.Decimal // Minimum |probability - price|
	MinConfidence decimal.Decimal // Minimum model confidence
	MinLiquidity  decimal.Decimal // Minimum 24h volume in quote currency

	// Staleness
	StalenessGrace time.Duration // Grace window past a market's end date
}

// DefaultLimits returns conservative default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionFraction: decimal.NewFromFloat(0.10), // 10% of cash per market
		MaxExposureFraction: decimal.NewFromFloat(0.50), // 50% of portfolio at risk
		MaxDailyDrawdown:    decimal.NewFromFloat(0.20), // -20% daily loss halts commits
		MinEdge:             decimal.NewFromFloat(0.05),
		MinConfidence:       decimal.NewFromFloat(0.55),
		MinLiquidity:        decimal.NewFromInt(500),
		StalenessGrace:      24 * time.Hour,
	}
}

// TightLimits returns very conservative limits for testing.
func TightLimits() Limits {
	return Limits{
		MaxPositionFraction: decimal.NewFromFloat(0.02),
		MaxExposureFraction: decimal.NewFromFloat(0.10),
		MaxDailyDrawdown:    decimal.NewFromFloat(0.05),
		MinEdge:             decimal.NewFromFloat(0.10),
		MinConfidence:       decimal.NewFromFloat(0.70),
		MinLiquidity:        decimal.NewFromInt(5000),
		StalenessGrace:      time.Hour,
	}
}
