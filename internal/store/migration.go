package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"prepost/internal/errors"
)

// MigrationRunner creates the results schema
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. Every statement is
// idempotent and valid for both PostgreSQL and SQLite.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create analysis_runs table", err)
	}

	if err := r.createLongRecordsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create long_records table", err)
	}

	if err := r.createResultsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create lsd_results table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("failed to create indexes", err)
	}

	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id UUID PRIMARY KEY,
			treatment TEXT NOT NULL,
			response TEXT NOT NULL,
			groupby TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			started_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createLongRecordsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS long_records (
			run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			client TEXT NOT NULL,
			question TEXT NOT NULL,
			identifiers JSONB NOT NULL DEFAULT '[]',
			score_pretest DOUBLE PRECISION NOT NULL,
			score_posttest DOUBLE PRECISION NOT NULL,
			delta DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_id, client, question)
		)
	`)
	return err
}

func (r *MigrationRunner) createResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lsd_results (
			run_id UUID NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
			groupby_value TEXT NOT NULL,
			position INTEGER NOT NULL,
			pair TEXT NOT NULL,
			group_a TEXT NOT NULL,
			group_b TEXT NOT NULL,
			abs_diff DOUBLE PRECISION NOT NULL,
			critical_value DOUBLE PRECISION NOT NULL,
			significance TEXT NOT NULL,
			PRIMARY KEY (run_id, groupby_value, position)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_long_records_question ON long_records(run_id, question)`,
		`CREATE INDEX IF NOT EXISTS idx_lsd_results_significance ON lsd_results(run_id, significance)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
