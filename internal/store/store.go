// Package store persists paired records and LSD results to PostgreSQL or
// SQLite, tagged by run.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"prepost/domain/survey"
	"prepost/internal/errors"
)

// Run describes one pipeline execution
type Run struct {
	ID         uuid.UUID `db:"id"`
	Treatment  string    `db:"treatment"`
	Response   string    `db:"response"`
	Groupby    string    `db:"groupby"`
	Confidence float64   `db:"confidence"`
	StartedAt  time.Time `db:"started_at"`
}

// ResultRow is one stored pairwise comparison
type ResultRow struct {
	RunID         uuid.UUID `db:"run_id"`
	GroupbyValue  string    `db:"groupby_value"`
	Position      int       `db:"position"`
	Pair          string    `db:"pair"`
	GroupA        string    `db:"group_a"`
	GroupB        string    `db:"group_b"`
	AbsDiff       float64   `db:"abs_diff"`
	CriticalValue float64   `db:"critical_value"`
	Significance  string    `db:"significance"`
}

type recordRow struct {
	RunID         uuid.UUID `db:"run_id"`
	Client        string    `db:"client"`
	Question      string    `db:"question"`
	Identifiers   string    `db:"identifiers"`
	ScorePretest  float64   `db:"score_pretest"`
	ScorePosttest float64   `db:"score_posttest"`
	Delta         float64   `db:"delta"`
}

// insertBatch bounds the bind parameters of one multi-row insert
const insertBatch = 500

// Store writes run output to a SQL database
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the database at url. URLs starting with sqlite: open an
// embedded SQLite database at the remaining path; anything else is handed to
// the PostgreSQL driver.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	driver, dsn := driverFor(url)
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if driver == "sqlite" {
		// in-memory databases live and die with their connection
		db.SetMaxOpenConns(1)
	}
	return New(db, logger), nil
}

func driverFor(url string) (driver, dsn string) {
	if rest, ok := strings.CutPrefix(url, "sqlite:"); ok {
		return "sqlite", strings.TrimPrefix(rest, "//")
	}
	return "postgres", url
}

// New wraps an open connection
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	runner := NewRunner()
	if err := runner.Run(ctx, s.db); err != nil {
		return err
	}
	s.logger.Debug("schema migrated", zap.String("version", runner.Version()))
	return nil
}

// SaveRun records a run; later saves reference it
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (id, treatment, response, groupby, confidence, started_at)
		VALUES (:id, :treatment, :response, :groupby, :confidence, :started_at)`, run)
	if err != nil {
		return errors.DatabaseError("failed to save run", err)
	}
	return nil
}

// SaveLongRecords stores the paired records of a run in one transaction
func (s *Store) SaveLongRecords(ctx context.Context, runID uuid.UUID, records []survey.LongRecord) error {
	rows := make([]recordRow, 0, len(records))
	for _, r := range records {
		ids, err := json.Marshal(r.Identifiers)
		if err != nil {
			return errors.Wrap(err, "failed to marshal identifiers")
		}
		rows = append(rows, recordRow{
			RunID:         runID,
			Client:        r.Client,
			Question:      r.Question,
			Identifiers:   string(ids),
			ScorePretest:  r.ScorePretest,
			ScorePosttest: r.ScorePosttest,
			Delta:         r.Delta,
		})
	}

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(rows); start += insertBatch {
			end := min(start+insertBatch, len(rows))
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO long_records (run_id, client, question, identifiers, score_pretest, score_posttest, delta)
				VALUES (:run_id, :client, :question, :identifiers, :score_pretest, :score_posttest, :delta)`,
				rows[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.DatabaseError("failed to save long records", err)
	}
	s.logger.Debug("long records saved", zap.String("run_id", runID.String()), zap.Int("count", len(rows)))
	return nil
}

// SaveResults stores the pairwise table of one slice, keeping table order
func (s *Store) SaveResults(ctx context.Context, runID uuid.UUID, groupbyValue string, results []survey.PairwiseResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([]ResultRow, len(results))
	for i, r := range results {
		rows[i] = ResultRow{
			RunID:         runID,
			GroupbyValue:  groupbyValue,
			Position:      i,
			Pair:          r.Pair,
			GroupA:        r.GroupA,
			GroupB:        r.GroupB,
			AbsDiff:       r.AbsMeanDiff,
			CriticalValue: r.CriticalValue,
			Significance:  string(r.Verdict),
		}
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO lsd_results (run_id, groupby_value, position, pair, group_a, group_b, abs_diff, critical_value, significance)
		VALUES (:run_id, :groupby_value, :position, :pair, :group_a, :group_b, :abs_diff, :critical_value, :significance)`, rows)
	if err != nil {
		return errors.DatabaseError("failed to save results", err)
	}
	return nil
}

// Results returns the stored pairwise rows of a run ordered by slice and
// table position
func (s *Store) Results(ctx context.Context, runID uuid.UUID) ([]ResultRow, error) {
	var rows []ResultRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT run_id, groupby_value, position, pair, group_a, group_b, abs_diff, critical_value, significance
		FROM lsd_results
		WHERE run_id = ?
		ORDER BY groupby_value, position`), runID)
	if err != nil {
		return nil, errors.DatabaseError("failed to query results", err)
	}
	return rows, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
