// Package store persists pipeline output: signals, commit results, cycle
// records and portfolio snapshots. Writes are append-only except for cycle
// status updates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

// ErrCycleNotFound is returned when no cycle exists for an id.
var ErrCycleNotFound = errors.New("cycle not found")

// CycleStatus is the lifecycle state of a pipeline cycle.
type CycleStatus string

const (
	CycleRunning CycleStatus = "running"
	CycleDone    CycleStatus = "done"
	CycleFailed  CycleStatus = "failed"
)

// CycleRecord is the persisted view of one cycle. Summary is the
// JSON-encoded cycle summary, written when the cycle finishes.
type CycleRecord struct {
	ID         string      `json:"id"`
	Status     CycleStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitempty"`
	Error      string      `json:"error,omitempty"`
	Summary    []byte      `json:"summary,omitempty"`
}

// Store is the persistence collaborator contract required by the pipeline.
// Implementations must provide at-least-once durable append semantics.
type Store interface {
	AppendSignal(ctx context.Context, cycleID string, sig signal.Signal) error
	AppendCommit(ctx context.Context, cycleID string, res ledger.CommitResult) error
	SavePortfolio(ctx context.Context, state ledger.PortfolioState) error
	SaveCycle(ctx context.Context, rec CycleRecord) error
	GetCycle(ctx context.Context, id string) (CycleRecord, error)
	Close()
}
