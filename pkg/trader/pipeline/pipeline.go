// Package pipeline wires market data, forecasts, evaluation, sizing and the
// ledger into full evaluation cycles.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edgefeed/edgefeed/pkg/forecast"
	"github.com/edgefeed/edgefeed/pkg/marketdata"
	"github.com/edgefeed/edgefeed/pkg/store"
	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/metrics"
	"github.com/edgefeed/edgefeed/pkg/trader/risk"
	"github.com/edgefeed/edgefeed/pkg/trader/scheduler"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
	"github.com/edgefeed/edgefeed/pkg/trader/sizing"
	"github.com/edgefeed/edgefeed/pkg/trader/streaming"
)

// MarketSource supplies market listings and snapshots.
type MarketSource interface {
	ListActive(ctx context.Context, limit int) ([]string, error)
	Get(ctx context.Context, id string) (marketdata.Snapshot, error)
}

// Config holds coordinator collaborators and tuning.
type Config struct {
	Source    MarketSource
	Predictor forecast.Predictor
	Sizer     *sizing.Sizer
	Ledger    *ledger.Ledger
	Scheduler *scheduler.Scheduler
	Store     store.Store
	Metrics   *metrics.PipelineMetrics
	Hub       *streaming.Hub
	Limits    risk.Limits

	// MarketLimit caps how many markets a cycle evaluates when the
	// caller does not override it.
	MarketLimit int
}

// CycleParams tunes one cycle run.
type CycleParams struct {
	// MarketLimit overrides the configured market cap when > 0.
	MarketLimit int `json:"market_limit,omitempty"`
	// MarketIDs, when non-empty, evaluates exactly these markets instead
	// of discovering active ones.
	MarketIDs []string `json:"market_ids,omitempty"`
	// DryRun sizes accepted signals but never commits them to the ledger.
	DryRun bool `json:"dry_run,omitempty"`
}

// CycleSummary reports one finished cycle.
type CycleSummary struct {
	CycleID    string                      `json:"cycle_id"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Evaluated  int                         `json:"evaluated"`
	Accepted   int                         `json:"accepted"`
	Committed  int                         `json:"committed"`
	Rejected   map[signal.RejectReason]int `json:"rejected"`
	TimedOut   int                         `json:"timed_out"`
	Failed     int                         `json:"failed"`
	Portfolio  ledger.PortfolioState       `json:"portfolio"`
}

// Coordinator runs evaluation cycles end to end.
type Coordinator struct {
	cfg Config
}

// NewCoordinator creates a coordinator. Source, Predictor, Sizer, Ledger
// and Scheduler are required; Store, Metrics and Hub are optional.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: market source is required")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("pipeline: predictor is required")
	}
	if cfg.Sizer == nil {
		return nil, errors.New("pipeline: sizer is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("pipeline: ledger is required")
	}
	if cfg.Scheduler == nil {
		return nil, errors.New("pipeline: scheduler is required")
	}
	if cfg.MarketLimit <= 0 {
		cfg.MarketLimit = 20
	}
	return &Coordinator{cfg: cfg}, nil
}

// RunCycle discovers markets, evaluates them concurrently, then sizes and
// commits accepted signals sequentially in market order. The cycle itself
// only fails when discovery fails; per-market problems become per-market
// results.
func (c *Coordinator) RunCycle(ctx context.Context, params CycleParams) (*CycleSummary, error) {
	cycleID := uuid.New().String()
	return c.runCycle(ctx, cycleID, params)
}

// StartCycle launches a cycle in the background and returns its id
// immediately. Progress is tracked through the store's cycle record.
func (c *Coordinator) StartCycle(params CycleParams) string {
	cycleID := uuid.New().String()

	go func() {
		ctx := context.Background()
		if _, err := c.runCycle(ctx, cycleID, params); err != nil {
			log.Printf("[PIPELINE] Cycle %s failed: %v", cycleID, err)
		}
	}()

	return cycleID
}

func (c *Coordinator) runCycle(ctx context.Context, cycleID string, params CycleParams) (*CycleSummary, error) {
	started := time.Now()
	log.Printf("[PIPELINE] Cycle %s starting", cycleID)

	c.saveCycle(ctx, store.CycleRecord{
		ID:        cycleID,
		Status:    store.CycleRunning,
		StartedAt: started,
	})

	ids := params.MarketIDs
	if len(ids) == 0 {
		limit := params.MarketLimit
		if limit <= 0 {
			limit = c.cfg.MarketLimit
		}
		var err error
		ids, err = c.cfg.Source.ListActive(ctx, limit)
		if err != nil {
			err = fmt.Errorf("list active markets: %w", err)
			c.finishCycle(ctx, cycleID, started, nil, err)
			return nil, err
		}
	}

	batch := c.cfg.Scheduler.Run(ctx, ids, c.evaluateMarket)

	summary := &CycleSummary{
		CycleID:   cycleID,
		StartedAt: started,
		Evaluated: batch.Evaluated,
		Accepted:  batch.Accepted,
		Rejected:  batch.Rejected,
		TimedOut:  batch.TimedOut,
		Failed:    batch.Failed,
	}

	c.recordEvaluations(batch)

	// Commit accepted signals one at a time, in market input order, so
	// every commit sees the exposure left behind by the previous one.
	// Commit-stage policy rejections count toward the summary just like
	// evaluation-stage ones.
	for _, res := range batch.Results {
		if res.Status != scheduler.StatusCompleted || !res.Outcome.Accepted {
			continue
		}
		committed, reason := c.commitSignal(ctx, cycleID, *res.Outcome.Signal, params.DryRun)
		switch {
		case committed:
			summary.Committed++
		case reason != "":
			summary.Rejected[reason]++
		}
	}

	state := c.cfg.Ledger.Snapshot()
	summary.Portfolio = state
	summary.FinishedAt = time.Now()

	c.publishPortfolio(ctx, state)
	c.finishCycle(ctx, cycleID, started, summary, nil)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordCycle("completed", summary.FinishedAt.Sub(started).Seconds(), summary.Evaluated)
	}
	if c.cfg.Hub != nil {
		c.cfg.Hub.BroadcastCycle(summary)
	}

	log.Printf("[PIPELINE] Cycle %s done: evaluated=%d accepted=%d committed=%d timed_out=%d failed=%d in %s",
		cycleID, summary.Evaluated, summary.Accepted, summary.Committed,
		summary.TimedOut, summary.Failed, summary.FinishedAt.Sub(started).Round(time.Millisecond))

	return summary, nil
}

// evaluateMarket fetches one market's snapshot and forecast, then applies
// the policy checks. Each collaborator call gets one retry inside the
// scheduler's deadline; a second failure fails the market.
func (c *Coordinator) evaluateMarket(ctx context.Context, marketID string) (signal.Outcome, error) {
	snap, err := retryOnce(ctx, func() (marketdata.Snapshot, error) {
		return c.cfg.Source.Get(ctx, marketID)
	})
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("market %s: snapshot: %w", marketID, err)
	}

	est, err := retryOnce(ctx, func() (forecast.Estimate, error) {
		return c.cfg.Predictor.Predict(ctx, snap)
	})
	if err != nil {
		return signal.Outcome{}, fmt.Errorf("market %s: forecast: %w", marketID, err)
	}

	return signal.Evaluate(snap, est, c.cfg.Limits, time.Now()), nil
}

// commitSignal sizes and commits one accepted signal, persists and
// broadcasts the result. A policy rejection from the sizer or the ledger is
// returned as the reason so the cycle summary can count it. In dry-run mode
// the sized signal is recorded but the ledger is left untouched.
func (c *Coordinator) commitSignal(ctx context.Context, cycleID string, sig signal.Signal, dryRun bool) (bool, signal.RejectReason) {
	state := c.cfg.Ledger.Snapshot()
	sized, reason := c.cfg.Sizer.Size(sig, state)
	if reason != "" {
		log.Printf("[PIPELINE] Signal %s %s not sized: %s", sig.MarketID, sig.Side, reason)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordCommit(string(reason))
		}
		return false, reason
	}

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordSignal(
			string(sized.Side),
			sized.Strength.String(),
			metrics.DecimalToFloat64(sized.Edge),
			metrics.DecimalToFloat64(sized.Size),
		)
	}
	if c.cfg.Store != nil {
		if err := c.cfg.Store.AppendSignal(ctx, cycleID, sized); err != nil {
			log.Printf("[PIPELINE] Persist signal %s: %v", sized.MarketID, err)
		}
	}
	if c.cfg.Hub != nil {
		c.cfg.Hub.BroadcastSignal(sized)
	}

	if dryRun {
		return false, ""
	}

	res, err := c.cfg.Ledger.Commit(sized)
	if err != nil {
		// Invariant refusal. The signal is dropped, the ledger is intact.
		log.Printf("[PIPELINE] Commit refused for %s: %v", sized.MarketID, err)
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordCommit("refused")
		}
		if c.cfg.Hub != nil {
			c.cfg.Hub.BroadcastError(err, "commit")
		}
		return false, ""
	}

	if c.cfg.Store != nil {
		if serr := c.cfg.Store.AppendCommit(ctx, cycleID, res); serr != nil {
			log.Printf("[PIPELINE] Persist commit %s: %v", sized.MarketID, serr)
		}
	}
	if c.cfg.Hub != nil {
		c.cfg.Hub.BroadcastCommit(res)
	}

	if c.cfg.Metrics != nil {
		if res.Committed {
			c.cfg.Metrics.RecordCommit("committed")
		} else {
			c.cfg.Metrics.RecordCommit(string(res.Reason))
		}
	}

	if !res.Committed {
		log.Printf("[PIPELINE] Commit rejected for %s: %s", sized.MarketID, res.Reason)
	}
	return res.Committed, res.Reason
}

// ObserveMarkets refreshes unrealized P&L from current YES prices and
// persists the resulting snapshot. Works in every ledger state.
func (c *Coordinator) ObserveMarkets(ctx context.Context, yesPrices map[string]decimal.Decimal) ledger.PortfolioState {
	state := c.cfg.Ledger.Observe(yesPrices)
	c.publishPortfolio(ctx, state)
	return state
}

func (c *Coordinator) publishPortfolio(ctx context.Context, state ledger.PortfolioState) {
	if c.cfg.Store != nil {
		if err := c.cfg.Store.SavePortfolio(ctx, state); err != nil {
			log.Printf("[PIPELINE] Persist portfolio: %v", err)
		}
	}
	if c.cfg.Hub != nil {
		c.cfg.Hub.BroadcastPortfolio(state)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.UpdateLedger(
			metrics.DecimalToFloat64(state.Cash),
			metrics.DecimalToFloat64(state.TotalExposure),
			metrics.DecimalToFloat64(state.DailyPnL),
			state.State == ledger.DrawdownBreached,
		)
	}
}

func (c *Coordinator) recordEvaluations(batch *scheduler.BatchResult) {
	if c.cfg.Metrics == nil {
		return
	}
	for _, r := range batch.Results {
		switch r.Status {
		case scheduler.StatusTimedOut:
			c.cfg.Metrics.RecordEvaluation("timed_out", "", r.Elapsed.Seconds())
		case scheduler.StatusFailed:
			c.cfg.Metrics.RecordEvaluation("failed", "", r.Elapsed.Seconds())
		case scheduler.StatusCompleted:
			if r.Outcome.Accepted {
				c.cfg.Metrics.RecordEvaluation("accepted", "", r.Elapsed.Seconds())
			} else {
				c.cfg.Metrics.RecordEvaluation("rejected", string(r.Outcome.Reason), r.Elapsed.Seconds())
			}
		}
	}
}

func (c *Coordinator) saveCycle(ctx context.Context, rec store.CycleRecord) {
	if c.cfg.Store == nil {
		return
	}
	if err := c.cfg.Store.SaveCycle(ctx, rec); err != nil {
		log.Printf("[PIPELINE] Persist cycle %s: %v", rec.ID, err)
	}
}

func (c *Coordinator) finishCycle(ctx context.Context, cycleID string, started time.Time, summary *CycleSummary, cycleErr error) {
	rec := store.CycleRecord{
		ID:         cycleID,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if cycleErr != nil {
		rec.Status = store.CycleFailed
		rec.Error = cycleErr.Error()
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.RecordCycle("failed", time.Since(started).Seconds(), 0)
		}
		if c.cfg.Hub != nil {
			c.cfg.Hub.BroadcastError(cycleErr, "cycle")
		}
	} else {
		rec.Status = store.CycleDone
		if data, err := json.Marshal(summary); err == nil {
			rec.Summary = data
		}
	}
	c.saveCycle(ctx, rec)
}

// retryOnce calls fn, retrying a single time on failure unless the context
// is already done.
func retryOnce[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || ctx.Err() != nil {
		return v, err
	}
	return fn()
}
