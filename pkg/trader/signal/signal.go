// Package signal implements the deterministic accept/reject decision for a
// single market evaluation.
package signal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the side of a market a signal trades.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Strength is an ordered signal strength tier.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthModerate
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthStrong:
		return "STRONG"
	case StrengthModerate:
		return "MODERATE"
	default:
		return "WEAK"
	}
}

// RejectReason tags a policy rejection. Rejections are outcomes, not errors.
type RejectReason string

const (
	RejectEdgeTooSmall     RejectReason = "edge_too_small"
	RejectConfidenceTooLow RejectReason = "confidence_too_low"
	RejectLiquidityTooLow  RejectReason = "liquidity_too_low"
	RejectStaleMarket      RejectReason = "stale_market"
	RejectExposureLimit    RejectReason = "exposure_limit_reached"
	RejectCircuitBreaker   RejectReason = "circuit_breaker_open"
)

// Signal is an accepted trading opportunity. Size is zero until the stake
// sizer fills it in; after that the signal is never mutated again.
type Signal struct {
	MarketID   string          `json:"market_id"`
	Side       Side            `json:"side"`
	Edge       decimal.Decimal `json:"edge"`
	Strength   Strength        `json:"strength"`
	Confidence decimal.Decimal `json:"confidence"`
	YesPrice   decimal.Decimal `json:"yes_price"` // market YES price at evaluation
	Size       decimal.Decimal `json:"size"`      // quote currency, filled by the sizer
	CreatedAt  time.Time       `json:"created_at"`
}

// EntryPrice returns the per-share cost of the signal's side.
func (s Signal) EntryPrice() decimal.Decimal {
	if s.Side == SideNo {
		return decimal.NewFromInt(1).Sub(s.YesPrice)
	}
	return s.YesPrice
}

// Outcome is the result of evaluating one market. Exactly one of Signal
// and Reason is meaningful. LiquidityChecked records whether the liquidity
// gate was applied or skipped because volume data was absent.
type Outcome struct {
	MarketID         string       `json:"market_id"`
	Accepted         bool         `json:"accepted"`
	Signal           *Signal      `json:"signal,omitempty"`
	Reason           RejectReason `json:"reason,omitempty"`
	LiquidityChecked bool         `json:"liquidity_checked"`
}

// Accept builds an accepted outcome.
func Accept(sig *Signal, liquidityChecked bool) Outcome {
	return Outcome{
		MarketID:         sig.MarketID,
		Accepted:         true,
		Signal:           sig,
		LiquidityChecked: liquidityChecked,
	}
}

// Reject builds a rejected outcome.
func Reject(marketID string, reason RejectReason, liquidityChecked bool) Outcome {
	return Outcome{
		MarketID:         marketID,
		Reason:           reason,
		LiquidityChecked: liquidityChecked,
	}
}
