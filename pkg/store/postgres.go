package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgefeed/edgefeed/pkg/trader/ledger"
	"github.com/edgefeed/edgefeed/pkg/trader/signal"
)

const (
	writeTimeout = 4 * time.Second
	readTimeout  = 2 * time.Second
)

// Postgres is a pgx-backed store.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects to the given DSN and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{db: pool}, nil
}

// AppendSignal inserts a signal row.
func (p *Postgres) AppendSignal(ctx context.Context, cycleID string, sig signal.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := p.db.Exec(ctx, `
        INSERT INTO signals (
            cycle_id, market_id, side, edge, strength, confidence, yes_price, size, created_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `,
		cycleID,
		sig.MarketID,
		string(sig.Side),
		sig.Edge,
		sig.Strength.String(),
		sig.Confidence,
		sig.YesPrice,
		sig.Size,
		sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

// AppendCommit inserts a commit row.
func (p *Postgres) AppendCommit(ctx context.Context, cycleID string, res ledger.CommitResult) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := p.db.Exec(ctx, `
        INSERT INTO commits (
            cycle_id, committed, reason, market_id, side, size, entry_price,
            cash_after, exposure_after, created_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `,
		cycleID,
		res.Committed,
		string(res.Reason),
		res.Position.MarketID,
		string(res.Position.Side),
		res.Position.Size,
		res.Position.EntryPrice,
		res.Portfolio.Cash,
		res.Portfolio.TotalExposure,
		res.Portfolio.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	return nil
}

// SavePortfolio inserts a portfolio snapshot row.
func (p *Postgres) SavePortfolio(ctx context.Context, state ledger.PortfolioState) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	positions, err := json.Marshal(state.Positions)
	if err != nil {
		return fmt.Errorf("encode positions: %w", err)
	}

	_, err = p.db.Exec(ctx, `
        INSERT INTO portfolio_snapshots (
            cash, total_exposure, daily_pnl, realized_pnl, unrealized_pnl,
            state, positions, taken_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `,
		state.Cash,
		state.TotalExposure,
		state.DailyPnL,
		state.RealizedPnL,
		state.UnrealizedPnL,
		state.State.String(),
		positions,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}

// SaveCycle upserts a cycle record.
func (p *Postgres) SaveCycle(ctx context.Context, rec CycleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := p.db.Exec(ctx, `
        INSERT INTO cycles (id, status, started_at, finished_at, error, summary)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO UPDATE SET
            status      = EXCLUDED.status,
            finished_at = EXCLUDED.finished_at,
            error       = EXCLUDED.error,
            summary     = EXCLUDED.summary
    `,
		rec.ID,
		string(rec.Status),
		rec.StartedAt,
		nullTime(rec.FinishedAt),
		rec.Error,
		rec.Summary,
	)
	if err != nil {
		return fmt.Errorf("save cycle: %w", err)
	}
	return nil
}

// GetCycle loads a cycle record by id.
func (p *Postgres) GetCycle(ctx context.Context, id string) (CycleRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var (
		rec      CycleRecord
		status   string
		finished *time.Time
	)
	err := p.db.QueryRow(ctx, `
        SELECT id, status, started_at, finished_at, error, summary
        FROM cycles
        WHERE id = $1
    `, id).Scan(&rec.ID, &status, &rec.StartedAt, &finished, &rec.Error, &rec.Summary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CycleRecord{}, fmt.Errorf("%w: %s", ErrCycleNotFound, id)
		}
		return CycleRecord{}, fmt.Errorf("get cycle: %w", err)
	}
	rec.Status = CycleStatus(status)
	if finished != nil {
		rec.FinishedAt = *finished
	}
	return rec, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.db.Close()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
