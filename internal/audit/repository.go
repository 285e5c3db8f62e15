package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/greenledger/cbio-forecast/internal/contracts"
)

// DB is the subset of *pgxpool.Pool the repository uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TrainingRun is one persisted training report
type TrainingRun struct {
	RunID     string                 `json:"run_id"`
	TrainedAt time.Time              `json:"trained_at"`
	Duration  time.Duration          `json:"duration"`
	TestRows  int                    `json:"test_rows"`
	Metrics   contracts.TrainMetrics `json:"metrics"`
	Analysis  string                 `json:"analysis"`
}

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS audit;
	CREATE TABLE IF NOT EXISTS audit.training_runs (
		run_id      UUID PRIMARY KEY,
		trained_at  TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL,
		test_rows   INTEGER NOT NULL,
		test_mae    DOUBLE PRECISION NOT NULL,
		test_rmse   DOUBLE PRECISION NOT NULL,
		test_mape   DOUBLE PRECISION NOT NULL,
		test_r2     DOUBLE PRECISION NOT NULL,
		train_mae   DOUBLE PRECISION NOT NULL,
		analysis    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS training_runs_trained_at_idx ON audit.training_runs (trained_at DESC);
`

// Repository handles training history persistence
// ⭐ SSOT: training runs are stored and read only here
type Repository struct {
	db  DB
	now func() time.Time
}

// NewRepository creates a new audit repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// EnsureSchema creates the history table when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// SaveRun records a finished training run
func (r *Repository) SaveRun(ctx context.Context, result *contracts.TrainResult, duration time.Duration) error {
	query := `
		INSERT INTO audit.training_runs (
			run_id, trained_at, duration_ms, test_rows,
			test_mae, test_rmse, test_mape, test_r2, train_mae, analysis
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO NOTHING
	`

	m := result.Metrics
	_, err := r.db.Exec(ctx, query,
		result.RunID, r.now().UTC(), duration.Milliseconds(), len(result.ChartData.TestDates),
		m.TestMAE, m.TestRMSE, m.TestMAPE, m.TestR2, m.TrainMAE, result.Analysis,
	)
	if err != nil {
		return fmt.Errorf("failed to save training run %s: %w", result.RunID, err)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]TrainingRun, error) {
	query := `
		SELECT run_id::text, trained_at, duration_ms, test_rows,
		       test_mae, test_rmse, test_mape, test_r2, train_mae, analysis
		FROM audit.training_runs
		ORDER BY trained_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)

	for rows.Next() {
		var run TrainingRun
		var durationMs int64

		err := rows.Scan(
			&run.RunID, &run.TrainedAt, &durationMs, &run.TestRows,
			&run.Metrics.TestMAE, &run.Metrics.TestRMSE, &run.Metrics.TestMAPE,
			&run.Metrics.TestR2, &run.Metrics.TrainMAE, &run.Analysis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}
