package sizing

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/risk"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

func testState(cash, exposure float64) ledger.PortfolioState {
	return ledger.PortfolioState{
		Cash:          decimal.NewFromFloat(cash),
		Positions:     map[string]ledger.Position{},
		TotalExposure: decimal.NewFromFloat(exposure),
	}
}

func testSignal(edge, yesPrice float64) signal.Signal {
	return signal.Signal{
		MarketID: "market1",
		Side:     signal.SideYes,
		Edge:     decimal.NewFromFloat(edge),
		YesPrice: decimal.NewFromFloat(yesPrice),
	}
}

func TestSize_ClampedToPositionCap(t *testing.T) {
	// Kelly: 0.30 / (1 - 0.40) * 0.25 = 0.125, clamped to 0.10.
	// Size = 0.10 * 10000 = 1000.
	sizer := New(risk.DefaultLimits(), 0.25)
	sized, reason := sizer.Size(testSignal(0.30, 0.40), testState(10000, 0))

	if reason != "" {
		t.Fatalf("Expected sized signal, got reject: %s", reason)
	}
	if !sized.Size.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("Expected size 1000, got %s", sized.Size)
	}
}

func TestSize_BelowCapUsesKellyFraction(t *testing.T) {
	// Kelly: 0.06 / (1 - 0.40) * 0.25 = 0.025 -> 250 of 10000.
	sizer := New(risk.DefaultLimits(), 0.25)
	sized, reason := sizer.Size(testSignal(0.06, 0.40), testState(10000, 0))

	if reason != "" {
		t.Fatalf("Expected sized signal, got reject: %s", reason)
	}
	if !sized.Size.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected size 250, got %s", sized.Size)
	}
}

func TestSize_ShrunkToExposureHeadroom(t *testing.T) {
	// Headroom: 0.50 * 10000 - 4900 = 100, below the Kelly size.
	state := testState(5100, 4900)
	state.Positions = map[string]ledger.Position{
		"other": {MarketID: "other", Size: decimal.NewFromInt(4900)},
	}

	sizer := New(risk.DefaultLimits(), 0.25)
	sized, reason := sizer.Size(testSignal(0.30, 0.40), state)

	if reason != "" {
		t.Fatalf("Expected sized signal, got reject: %s", reason)
	}
	if !sized.Size.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected size shrunk to headroom 100, got %s", sized.Size)
	}
}

func TestSize_NoHeadroomRejects(t *testing.T) {
	// Exposure already at the cap: 0.50 * 10000 = 5000.
	state := testState(5000, 5000)
	state.Positions = map[string]ledger.Position{
		"other": {MarketID: "other", Size: decimal.NewFromInt(5000)},
	}

	sizer := New(risk.DefaultLimits(), 0.25)
	_, reason := sizer.Size(testSignal(0.30, 0.40), state)

	if reason != signal.RejectExposureLimit {
		t.Errorf("Expected exposure_limit_reached, got %q", reason)
	}
}

func TestSize_NoSideUsesComplementPrice(t *testing.T) {
	// NO at YES price 0.80: entry 0.20, Kelly = 0.20/(1-0.20)*0.25 = 0.0625.
	sig := testSignal(0.20, 0.80)
	sig.Side = signal.SideNo

	sizer := New(risk.DefaultLimits(), 0.25)
	sized, reason := sizer.Size(sig, testState(10000, 0))

	if reason != "" {
		t.Fatalf("Expected sized signal, got reject: %s", reason)
	}
	if !sized.Size.Equal(decimal.NewFromInt(625)) {
		t.Errorf("Expected size 625, got %s", sized.Size)
	}
}

func TestSize_NeverExceedsCash(t *testing.T) {
	limits := risk.DefaultLimits()
	limits.MaxPositionFraction = decimal.NewFromInt(1)
	limits.MaxExposureFraction = decimal.NewFromInt(1)

	sizer := New(limits, 4) // aggressive multiplier
	state := testState(100, 0)
	sized, reason := sizer.Size(testSignal(0.30, 0.40), state)

	if reason != "" {
		t.Fatalf("Expected sized signal, got reject: %s", reason)
	}
	if sized.Size.GreaterThan(state.Cash) {
		t.Errorf("Size %s exceeds cash %s", sized.Size, state.Cash)
	}
}

func TestNew_DefaultMultiplier(t *testing.T) {
	a := New(risk.DefaultLimits(), 0)
	b := New(risk.DefaultLimits(), DefaultKellyMultiplier)

	sigA, _ := a.Size(testSignal(0.06, 0.40), testState(10000, 0))
	sigB, _ := b.Size(testSignal(0.06, 0.40), testState(10000, 0))
	if !sigA.Size.Equal(sigB.Size) {
		t.Errorf("Zero multiplier should fall back to default: %s != %s", sigA.Size, sigB.Size)
	}
}
