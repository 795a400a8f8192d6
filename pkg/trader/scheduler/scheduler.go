// Package scheduler runs per-market evaluations concurrently with bounded
// parallelism, per-item deadlines and full failure isolation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

// Status classifies one market's evaluation result.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
)

// EvalFunc evaluates a single market. It must honor ctx: the scheduler
// wraps each call with a deadline and abandons it on expiry.
type EvalFunc func(ctx context.Context, marketID string) (signal.Outcome, error)

// Result is one market's evaluation result. Outcome is meaningful only
// when Status is StatusCompleted; Err carries the cause for StatusFailed.
type Result struct {
	MarketID string         `json:"market_id"`
	Status   Status         `json:"status"`
	Outcome  signal.Outcome `json:"outcome,omitempty"`
	Err      error          `json:"-"`
	Elapsed  time.Duration  `json:"elapsed"`
}

// BatchResult aggregates a whole batch. Results are in input order,
// independent of completion order.
type BatchResult struct {
	Results   []Result                    `json:"results"`
	Evaluated int                         `json:"evaluated"`
	Accepted  int                         `json:"accepted"`
	Rejected  map[signal.RejectReason]int `json:"rejected"`
	TimedOut  int                         `json:"timed_out"`
	Failed    int                         `json:"failed"`
}

// Config tunes the scheduler.
type Config struct {
	Workers   int           // concurrent evaluations per chunk
	ChunkSize int           // markets per chunk
	Timeout   time.Duration // per-market deadline
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:   3,
		ChunkSize: 8,
		Timeout:   30 * time.Second,
	}
}

// Scheduler fans out market evaluations.
type Scheduler struct {
	cfg *Config
}

// New creates a scheduler.
func New(cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Scheduler{cfg: cfg}
}

// Run evaluates every market and returns one result per input id, in
// input order. A slow or failing market never blocks or aborts its
// siblings: timeouts and errors are converted into per-market results.
func (s *Scheduler) Run(ctx context.Context, marketIDs []string, fn EvalFunc) *BatchResult {
	results := make([]Result, len(marketIDs))
	sem := make(chan struct{}, s.cfg.Workers)

	for start := 0; start < len(marketIDs); start += s.cfg.ChunkSize {
		end := start + s.cfg.ChunkSize
		if end > len(marketIDs) {
			end = len(marketIDs)
		}

		if ctx.Err() != nil {
			// Batch context gone; mark everything left as failed.
			for i := start; i < len(marketIDs); i++ {
				results[i] = Result{MarketID: marketIDs[i], Status: StatusFailed, Err: ctx.Err()}
			}
			break
		}

		done := make(chan struct{}, end-start)
		pending := end - start
		for i := start; i < end; i++ {
			sem <- struct{}{}
			go func(idx int) {
				defer func() { <-sem }()
				results[idx] = s.runOne(ctx, marketIDs[idx], fn)
				done <- struct{}{}
			}(i)
		}
		for i := 0; i < pending; i++ {
			<-done
		}
	}

	return summarize(results)
}

// runOne executes one evaluation under its own deadline. The evaluation
// runs in a separate goroutine so an unresponsive collaborator cannot hold
// the worker slot past the deadline; the in-flight call is abandoned.
func (s *Scheduler) runOne(ctx context.Context, marketID string, fn EvalFunc) Result {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	type evalReply struct {
		outcome signal.Outcome
		err     error
	}
	reply := make(chan evalReply, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- evalReply{err: fmt.Errorf("evaluation panic: %v", r)}
			}
		}()
		outcome, err := fn(cctx, marketID)
		reply <- evalReply{outcome: outcome, err: err}
	}()

	select {
	case r := <-reply:
		elapsed := time.Since(start)
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && cctx.Err() == context.DeadlineExceeded {
				return Result{MarketID: marketID, Status: StatusTimedOut, Elapsed: elapsed}
			}
			return Result{MarketID: marketID, Status: StatusFailed, Err: r.err, Elapsed: elapsed}
		}
		return Result{MarketID: marketID, Status: StatusCompleted, Outcome: r.outcome, Elapsed: elapsed}

	case <-cctx.Done():
		elapsed := time.Since(start)
		if ctx.Err() != nil {
			// Whole batch canceled, not a per-market timeout.
			return Result{MarketID: marketID, Status: StatusFailed, Err: ctx.Err(), Elapsed: elapsed}
		}
		return Result{MarketID: marketID, Status: StatusTimedOut, Elapsed: elapsed}
	}
}

func summarize(results []Result) *BatchResult {
	batch := &BatchResult{
		Results:  results,
		Rejected: make(map[signal.RejectReason]int),
	}
	for _, r := range results {
		batch.Evaluated++
		switch r.Status {
		case StatusTimedOut:
			batch.TimedOut++
		case StatusFailed:
			batch.Failed++
		case StatusCompleted:
			if r.Outcome.Accepted {
				batch.Accepted++
			} else {
				batch.Rejected[r.Outcome.Reason]++
			}
		}
	}
	return batch
}
