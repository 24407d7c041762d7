package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jclee94/blacklist/pkg/ipstore"
)

// Store provides database operations for CollectionRun history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a collection Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const runColumns = `id, source, status, start_date, end_date, started_at, finished_at, inserted, updated, skipped_total, error_detail, created_at`

func scanRun(row pgx.Row) (Run, error) {
	var r Run
	var source string
	if err := row.Scan(
		&r.ID, &source, &r.Status, &r.StartDate, &r.EndDate, &r.StartedAt,
		&r.FinishedAt, &r.Inserted, &r.Updated, &r.SkippedTotal, &r.ErrorDetail, &r.CreatedAt,
	); err != nil {
		return Run{}, err
	}
	r.Source = ipstore.Source(source)
	return r, nil
}

// CreateRun inserts a new CollectionRun in pending status and returns it.
func (s *Store) CreateRun(ctx context.Context, r Run) (Run, error) {
	query := `INSERT INTO collection_runs (id, source, status, start_date, end_date, started_at, inserted, updated, skipped_total, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, '')
		RETURNING ` + runColumns
	row := s.pool.QueryRow(ctx, query, r.ID, string(r.Source), string(r.Status), r.StartDate, r.EndDate, r.StartedAt)
	return scanRun(row)
}

// UpdateStatus persists a run's terminal state and outcome counters.
func (s *Store) UpdateStatus(ctx context.Context, r Run) error {
	query := `UPDATE collection_runs SET status = $2, finished_at = $3, inserted = $4, updated = $5, skipped_total = $6, error_detail = $7
		WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, r.ID, string(r.Status), r.FinishedAt, r.Inserted, r.Updated, r.SkippedTotal, r.ErrorDetail)
	if err != nil {
		return fmt.Errorf("updating collection run %s: %w", r.ID, err)
	}
	return nil
}

// Get returns a single run by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	query := `SELECT ` + runColumns + ` FROM collection_runs WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	return scanRun(row)
}

// LastRunPerSource returns the most recent run for every source that has
// ever been triggered, backing GET /api/v2/sources/status.
func (s *Store) LastRunPerSource(ctx context.Context) ([]LastRunSummary, error) {
	query := `
		SELECT DISTINCT ON (source) source, status, started_at, finished_at, inserted, updated
		FROM collection_runs
		ORDER BY source, started_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying last run per source: %w", err)
	}
	defer rows.Close()

	var out []LastRunSummary
	for rows.Next() {
		var sm LastRunSummary
		var source string
		if err := rows.Scan(&source, &sm.Status, &sm.StartedAt, &sm.FinishedAt, &sm.Inserted, &sm.Updated); err != nil {
			return nil, fmt.Errorf("scanning last run row: %w", err)
		}
		sm.Source = ipstore.Source(source)
		out = append(out, sm)
	}
	return out, rows.Err()
}

// ListRuns returns run history newest-first, optionally scoped to one
// source, as a keyset page: at most limit+1 rows starting strictly after
// (afterCreatedAt, afterID) in (created_at DESC, id DESC) order, so the
// caller can detect whether more rows follow without a separate COUNT.
// A zero afterCreatedAt/afterID starts from the newest run.
func (s *Store) ListRuns(ctx context.Context, source *ipstore.Source, afterCreatedAt time.Time, afterID uuid.UUID, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM collection_runs WHERE ($1::text IS NULL OR source = $1)
		AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC LIMIT $4`

	var sourceArg *string
	if source != nil {
		s := string(*source)
		sourceArg = &s
	}
	var afterArg *time.Time
	if !afterCreatedAt.IsZero() {
		afterArg = &afterCreatedAt
	}

	rows, err := s.pool.Query(ctx, query, sourceArg, afterArg, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing collection runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning collection run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
