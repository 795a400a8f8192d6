// Package forecast provides the probability-model collaborator contract
// and an HTTP client for a remote model service.
package forecast

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/marketdata"
)

// Estimate is a model probability estimate for one market. One estimate
// corresponds to exactly one snapshot at evaluation time.
type Estimate struct {
	MarketID    string          `json:"market_id"`
	Probability decimal.Decimal `json:"probability"` // 0-1
	Confidence  decimal.Decimal `json:"confidence"`  // 0-1
	GeneratedAt time.Time       `json:"generated_at"`
}

// Predictor produces probability estimates. Implementations are treated as
// untrusted: the pipeline never assumes the output is calibrated.
type Predictor interface {
	Predict(ctx context.Context, snap marketdata.Snapshot) (Estimate, error)
}
