// Package sizing converts accepted signals into position sizes using a
// fractional-Kelly staking rule.
package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/risk"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

// DefaultKellyMultiplier is the fractional-Kelly scale factor.
const DefaultKellyMultiplier = 0.25

// Sizer sizes accepted signals against the current portfolio.
type Sizer struct {
	limits     risk.Limits
	multiplier decimal.Decimal
}

// New creates a sizer. A multiplier <= 0 falls back to the default.
func New(limits risk.Limits, kellyMultiplier float64) *Sizer {
	if kellyMultiplier <= 0 {
		kellyMultiplier = DefaultKellyMultiplier
	}
	return &Sizer{
		limits:     limits,
		multiplier: decimal.NewFromFloat(kellyMultiplier),
	}
}

// Size fills in the signal's size from the Kelly fraction, clamped to the
// per-position cap and shrunk to the remaining exposure headroom. A reason
// is returned instead of a sized signal when no headroom remains; a signal
// is never emitted with size zero or negative.
func (s *Sizer) Size(sig signal.Signal, state ledger.PortfolioState) (signal.Signal, signal.RejectReason) {
	one := decimal.NewFromInt(1)

	// Kelly: f* = edge / (1 - price) for the side being bought, where
	// price is the per-share cost of that side.
	price := sig.EntryPrice()
	denom := one.Sub(price)
	if denom.LessThanOrEqual(decimal.Zero) {
		return signal.Signal{}, signal.RejectExposureLimit
	}
	fraction := sig.Edge.Div(denom).Mul(s.multiplier)

	if fraction.GreaterThan(s.limits.MaxPositionFraction) {
		fraction = s.limits.MaxPositionFraction
	}
	if fraction.LessThanOrEqual(decimal.Zero) {
		return signal.Signal{}, signal.RejectExposureLimit
	}

	size := fraction.Mul(state.Cash)
	if size.GreaterThan(state.Cash) {
		size = state.Cash
	}

	headroom := s.limits.MaxExposureFraction.Mul(state.TotalValue()).Sub(state.TotalExposure)
	if headroom.LessThanOrEqual(decimal.Zero) {
		return signal.Signal{}, signal.RejectExposureLimit
	}
	if size.GreaterThan(headroom) {
		size = headroom
	}

	if size.LessThanOrEqual(decimal.Zero) {
		return signal.Signal{}, signal.RejectExposureLimit
	}

	sig.Size = size
	return sig, ""
}
