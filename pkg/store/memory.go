package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

// Memory is an in-process store for tests and for running without a
// database.
type Memory struct {
	mu         sync.RWMutex
	signals    []StoredSignal
	commits    []StoredCommit
	portfolios []ledger.PortfolioState
	cycles     map[string]CycleRecord
}

// StoredSignal is a signal with its cycle id.
type StoredSignal struct {
	CycleID string
	Signal  signal.Signal
}

// StoredCommit is a commit result with its cycle id.
type StoredCommit struct {
	CycleID string
	Result  ledger.CommitResult
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cycles: make(map[string]CycleRecord)}
}

func (m *Memory) AppendSignal(ctx context.Context, cycleID string, sig signal.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, StoredSignal{CycleID: cycleID, Signal: sig})
	return nil
}

func (m *Memory) AppendCommit(ctx context.Context, cycleID string, res ledger.CommitResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits = append(m.commits, StoredCommit{CycleID: cycleID, Result: res})
	return nil
}

func (m *Memory) SavePortfolio(ctx context.Context, state ledger.PortfolioState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolios = append(m.portfolios, state)
	return nil
}

func (m *Memory) SaveCycle(ctx context.Context, rec CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[rec.ID] = rec
	return nil
}

func (m *Memory) GetCycle(ctx context.Context, id string) (CycleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.cycles[id]
	if !ok {
		return CycleRecord{}, fmt.Errorf("%w: %s", ErrCycleNotFound, id)
	}
	return rec, nil
}

func (m *Memory) Close() {}

// Signals returns a copy of the appended signals.
func (m *Memory) Signals() []StoredSignal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredSignal, len(m.signals))
	copy(out, m.signals)
	return out
}

// Commits returns a copy of the appended commit results.
func (m *Memory) Commits() []StoredCommit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredCommit, len(m.commits))
	copy(out, m.commits)
	return out
}

// AllCycles returns a copy of every saved cycle record.
func (m *Memory) AllCycles() []CycleRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CycleRecord, 0, len(m.cycles))
	for _, rec := range m.cycles {
		out = append(out, rec)
	}
	return out
}

// Portfolios returns a copy of the saved portfolio snapshots.
func (m *Memory) Portfolios() []ledger.PortfolioState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.PortfolioState, len(m.portfolios))
	copy(out, m.portfolios)
	return out
}
