// Package marketdata provides a client for the upstream prediction-market
// data API and the snapshot types consumed by the pipeline.
package marketdata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable view of one market at fetch time.
type Snapshot struct {
	ID        string          `json:"id"`
	Question  string          `json:"question"`
	YesPrice  decimal.Decimal `json:"yes_price"` // 0-1
	Volume24h Volume          `json:"volume_24h"`
	Liquidity decimal.Decimal `json:"liquidity"`
	EndDate   time.Time       `json:"end_date"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Volume is a tri-state volume figure: the upstream API may omit the field
// entirely, which is not the same as reporting zero. Present is false when
// the provider did not supply a value.
type Volume struct {
	Amount  decimal.Decimal
	Present bool
}

// VolumeOf returns a present volume.
func VolumeOf(amount decimal.Decimal) Volume {
	return Volume{Amount: amount, Present: true}
}

// NoVolume returns an absent volume.
func NoVolume() Volume {
	return Volume{}
}

// UnmarshalJSON accepts numbers, numeric strings, null and the empty
// string. Null and "" map to absent, everything else to present.
func (v *Volume) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Volume{}
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Volume{Amount: decimal.NewFromFloat(f), Present: true}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*v = Volume{}
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*v = Volume{Amount: decimal.NewFromFloat(f), Present: true}
	return nil
}

// MarshalJSON writes null for an absent volume.
func (v Volume) MarshalJSON() ([]byte, error) {
	if !v.Present {
		return []byte("null"), nil
	}
	return []byte(v.Amount.String()), nil
}

// JSONFloat handles both numeric and string JSON values.
type JSONFloat float64

func (j *JSONFloat) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*j = JSONFloat(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*j = 0
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*j = JSONFloat(f)
	return nil
}

func (j JSONFloat) Float64() float64 {
	return float64(j)
}

// apiMarket is the wire representation returned by the markets API.
type apiMarket struct {
	ID         string          `json:"id"`
	Question   string          `json:"question"`
	YesPrice   JSONFloat       `json:"yesPrice"`
	Volume24hr json.RawMessage `json:"volume24hr"`
	Liquidity  JSONFloat       `json:"liquidity"`
	EndDate    time.Time       `json:"endDate"`
	Active     bool            `json:"active"`
	Closed     bool            `json:"closed"`
}

// IsTradeable returns true if the market can be traded on.
func (m *apiMarket) IsTradeable() bool {
	return m.Active && !m.Closed
}

func (m *apiMarket) snapshot(now time.Time) (Snapshot, error) {
	snap := Snapshot{
		ID:        m.ID,
		Question:  m.Question,
		YesPrice:  decimal.NewFromFloat(m.YesPrice.Float64()),
		Liquidity: decimal.NewFromFloat(m.Liquidity.Float64()),
		EndDate:   m.EndDate,
		FetchedAt: now,
	}
	if len(m.Volume24hr) > 0 {
		// A malformed value is an input error for this market; it must not
		// silently pass as absent volume and dodge the liquidity gate.
		var v Volume
		if err := json.Unmarshal(m.Volume24hr, &v); err != nil {
			return Snapshot{}, fmt.Errorf("parse volume24hr: %w", err)
		}
		snap.Volume24h = v
	}
	return snap, nil
}
