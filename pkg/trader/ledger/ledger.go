// Package ledger holds portfolio state and enforces global risk limits.
// All mutation flows through Commit, the single critical section of the
// pipeline.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/trader/risk"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

// State is the ledger state machine position.
type State int

const (
	// Open accepts commits.
	Open State = iota
	// DrawdownBreached rejects all commits until the next daily reset.
	// Observe still works.
	DrawdownBreached
)

func (s State) String() string {
	if s == DrawdownBreached {
		return "drawdown_breached"
	}
	return "open"
}

// Position is an open position in one market. Size is the stake in quote
// currency; EntryPrice is the per-share cost of the held side.
type Position struct {
	MarketID   string          `json:"market_id"`
	Side       signal.Side     `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// PortfolioState is a point-in-time copy of the ledger's state.
type PortfolioState struct {
	Cash          decimal.Decimal     `json:"cash"`
	Positions     map[string]Position `json:"positions"`
	TotalExposure decimal.Decimal     `json:"total_exposure"`
	DailyPnL      decimal.Decimal     `json:"daily_pnl"`
	RealizedPnL   decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	State         State               `json:"state"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// TotalValue is cash plus the stake held in open positions.
func (p PortfolioState) TotalValue() decimal.Decimal {
	total := p.Cash
	for _, pos := range p.Positions {
		total = total.Add(pos.Size)
	}
	return total
}

// ChangeKind tags an entry in the ledger change log.
type ChangeKind string

const (
	ChangeCommit     ChangeKind = "commit"
	ChangePnL        ChangeKind = "pnl"
	ChangeDailyReset ChangeKind = "daily_reset"
)

// ChangeEntry is one record in the append-only change log.
type ChangeEntry struct {
	ID       string          `json:"id"`
	Kind     ChangeKind      `json:"kind"`
	MarketID string          `json:"market_id,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
	At       time.Time       `json:"at"`
}

// CommitResult reports the outcome of a commit attempt. A rejected commit
// (circuit breaker) sets Committed=false and Reason; it is not an error.
type CommitResult struct {
	Committed bool                `json:"committed"`
	Reason    signal.RejectReason `json:"reason,omitempty"`
	Position  Position            `json:"position"`
	Portfolio PortfolioState      `json:"portfolio"`
}

// Ledger is the portfolio state machine. Safe for concurrent use.
type Ledger struct {
	limits risk.Limits

	mu            sync.Mutex
	cash          decimal.Decimal
	positions     map[string]Position
	exposure      decimal.Decimal
	dailyPnL      decimal.Decimal
	realizedPnL   decimal.Decimal
	unrealizedPnL decimal.Decimal
	dayStartValue decimal.Decimal
	state         State
	day           int // day of year of the current trading day
	changes       []ChangeEntry
	now           func() time.Time
}

// New creates a ledger with the given starting cash.
func New(initialCash decimal.Decimal, limits risk.Limits) *Ledger {
	now := time.Now()
	return &Ledger{
		limits:        limits,
		cash:          initialCash,
		positions:     make(map[string]Position),
		dayStartValue: initialCash,
		day:           now.YearDay(),
		now:           time.Now,
	}
}

// Commit applies a sized signal to the portfolio. The drawdown check and
// the exposure update are read-then-written atomically under the ledger
// lock; no I/O happens inside the critical section.
//
// A circuit-breaker rejection is returned in the CommitResult. An error
// return means the commit would violate a portfolio invariant and was
// refused; the caller should treat that as fatal.
func (l *Ledger) Commit(sig signal.Signal) (CommitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.resetDailyIfNeeded(now)

	if l.state == DrawdownBreached {
		return CommitResult{
			Reason:    signal.RejectCircuitBreaker,
			Portfolio: l.snapshotLocked(now),
		}, nil
	}

	if sig.Size.IsNegative() {
		return CommitResult{}, fmt.Errorf("refusing commit: negative size %s for market %s", sig.Size, sig.MarketID)
	}
	if sig.Size.GreaterThan(l.cash) {
		return CommitResult{}, fmt.Errorf("refusing commit: size %s exceeds cash %s", sig.Size, l.cash)
	}

	newExposure := l.exposure.Add(sig.Size)
	limit := l.limits.MaxExposureFraction.Mul(l.totalValueLocked())
	if newExposure.GreaterThan(limit) {
		return CommitResult{}, fmt.Errorf("refusing commit: exposure %s would exceed cap %s", newExposure, limit)
	}

	pos, ok := l.positions[sig.MarketID]
	if ok && pos.Side == sig.Side {
		// Average into the existing position.
		totalCost := pos.EntryPrice.Mul(pos.Size).Add(sig.EntryPrice().Mul(sig.Size))
		pos.Size = pos.Size.Add(sig.Size)
		pos.EntryPrice = totalCost.Div(pos.Size)
	} else {
		pos = Position{
			MarketID:   sig.MarketID,
			Side:       sig.Side,
			Size:       sig.Size,
			EntryPrice: sig.EntryPrice(),
			OpenedAt:   now,
		}
	}

	l.cash = l.cash.Sub(sig.Size)
	l.positions[sig.MarketID] = pos
	l.exposure = newExposure
	l.appendChangeLocked(ChangeCommit, sig.MarketID, sig.Size, now)

	return CommitResult{
		Committed: true,
		Position:  pos,
		Portfolio: l.snapshotLocked(now),
	}, nil
}

// Observe recomputes unrealized P&L from current YES prices and returns a
// state snapshot. Allowed in every ledger state.
func (l *Ledger) Observe(yesPrices map[string]decimal.Decimal) PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()

	one := decimal.NewFromInt(1)
	unrealized := decimal.Zero
	for id, pos := range l.positions {
		yes, ok := yesPrices[id]
		if !ok || pos.EntryPrice.IsZero() {
			continue
		}
		price := yes
		if pos.Side == signal.SideNo {
			price = one.Sub(yes)
		}
		// shares = stake / entry; pnl = shares * (price - entry)
		unrealized = unrealized.Add(pos.Size.Mul(price.Sub(pos.EntryPrice)).Div(pos.EntryPrice))
	}
	l.unrealizedPnL = unrealized

	return l.snapshotLocked(l.now())
}

// RecordPnL books realized profit or loss for a market, e.g. from a
// settlement. A drawdown past the daily limit trips the circuit breaker.
func (l *Ledger) RecordPnL(marketID string, pnl decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.resetDailyIfNeeded(now)

	l.dailyPnL = l.dailyPnL.Add(pnl)
	l.realizedPnL = l.realizedPnL.Add(pnl)
	l.cash = l.cash.Add(pnl)
	l.appendChangeLocked(ChangePnL, marketID, pnl, now)

	if pos, ok := l.positions[marketID]; ok {
		l.exposure = l.exposure.Sub(pos.Size)
		l.cash = l.cash.Add(pos.Size)
		delete(l.positions, marketID)
	}

	if l.drawdownBreachedLocked() {
		l.state = DrawdownBreached
	}
}

// ResetDaily closes out the trading day: the breaker reopens and daily
// P&L restarts from zero. Intended for an external scheduler; commits also
// roll the day over automatically when the calendar day changes.
func (l *Ledger) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyLocked(l.now())
}

// Snapshot returns a copy of the current portfolio state.
func (l *Ledger) Snapshot() PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(l.now())
}

// State returns the current state machine position.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Changes returns a copy of the append-only change log.
func (l *Ledger) Changes() []ChangeEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChangeEntry, len(l.changes))
	copy(out, l.changes)
	return out
}

// --- Internal helpers, caller holds l.mu ---

func (l *Ledger) totalValueLocked() decimal.Decimal {
	total := l.cash
	for _, pos := range l.positions {
		total = total.Add(pos.Size)
	}
	return total
}

func (l *Ledger) drawdownBreachedLocked() bool {
	if l.dayStartValue.IsZero() || !l.dailyPnL.IsNegative() {
		return false
	}
	frac := l.dailyPnL.Div(l.dayStartValue)
	return frac.LessThanOrEqual(l.limits.MaxDailyDrawdown.Neg())
}

func (l *Ledger) resetDailyIfNeeded(now time.Time) {
	if l.day != now.YearDay() {
		l.resetDailyLocked(now)
	}
}

func (l *Ledger) resetDailyLocked(now time.Time) {
	l.state = Open
	l.dailyPnL = decimal.Zero
	l.dayStartValue = l.totalValueLocked()
	l.day = now.YearDay()
	l.appendChangeLocked(ChangeDailyReset, "", decimal.Zero, now)
}

func (l *Ledger) appendChangeLocked(kind ChangeKind, marketID string, amount decimal.Decimal, now time.Time) {
	l.changes = append(l.changes, ChangeEntry{
		ID:       uuid.New().String(),
		Kind:     kind,
		MarketID: marketID,
		Amount:   amount,
		At:       now,
	})
}

func (l *Ledger) snapshotLocked(now time.Time) PortfolioState {
	positions := make(map[string]Position, len(l.positions))
	for id, pos := range l.positions {
		positions[id] = pos
	}
	return PortfolioState{
		Cash:          l.cash,
		Positions:     positions,
		TotalExposure: l.exposure,
		DailyPnL:      l.dailyPnL,
		RealizedPnL:   l.realizedPnL,
		UnrealizedPnL: l.unrealizedPnL,
		State:         l.state,
		UpdatedAt:     now,
	}
}
