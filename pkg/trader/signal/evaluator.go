package signal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/forecast"
	"github.com/edgefeed/edgefeed/pkg/marketdata"
	"github.com/edgefeed/edgefeed/pkg/trader/risk"
)

// Strength tier thresholds on edge x confidence.
var (
	strongThreshold   = decimal.NewFromFloat(0.25)
	moderateThreshold = decimal.NewFromFloat(0.10)
)

// Evaluate converts one (snapshot, estimate) pair into an accept or reject
// outcome. Checks run in a fixed order and short-circuit on the first
// failure: staleness, edge, confidence, liquidity. When the snapshot
// carries no volume figure the liquidity check is skipped, not passed, and
// the outcome records the skip.
func Evaluate(snap marketdata.Snapshot, est forecast.Estimate, limits risk.Limits, now time.Time) Outcome {
	liquidityChecked := snap.Volume24h.Present

	// 1. Staleness
	if !snap.EndDate.IsZero() && now.After(snap.EndDate.Add(limits.StalenessGrace)) {
		return Reject(snap.ID, RejectStaleMarket, liquidityChecked)
	}

	// 2. Edge
	edge := est.Probability.Sub(snap.YesPrice)
	side := SideYes
	if edge.IsNegative() {
		edge = edge.Neg()
		side = SideNo
	}
	if edge.LessThan(limits.MinEdge) {
		return Reject(snap.ID, RejectEdgeTooSmall, liquidityChecked)
	}

	// 3. Confidence
	if est.Confidence.LessThan(limits.MinConfidence) {
		return Reject(snap.ID, RejectConfidenceTooLow, liquidityChecked)
	}

	// 4. Liquidity, only when the provider supplied a volume figure
	if liquidityChecked && snap.Volume24h.Amount.LessThan(limits.MinLiquidity) {
		return Reject(snap.ID, RejectLiquidityTooLow, liquidityChecked)
	}

	// 5. Strength tiering
	sig := &Signal{
		MarketID:   snap.ID,
		Side:       side,
		Edge:       edge,
		Strength:   tier(edge.Mul(est.Confidence)),
		Confidence: est.Confidence,
		YesPrice:   snap.YesPrice,
		CreatedAt:  now,
	}
	return Accept(sig, liquidityChecked)
}

func tier(score decimal.Decimal) Strength {
	switch {
	case score.GreaterThanOrEqual(strongThreshold):
		return StrengthStrong
	case score.GreaterThanOrEqual(moderateThreshold):
		return StrengthModerate
	default:
		return StrengthWeak
	}
}
