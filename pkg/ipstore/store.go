package ipstore

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for IP records using the global pool.
// The Store allows many concurrent readers and at most one writer; write
// serialisation is the Scheduler's responsibility, not the Store's (§5).
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an IP record Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const recordColumns = `ip, source, threat_level, detection_date, first_seen, last_seen, expires_at, is_active, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	var ipText string
	var source []string
	if err := row.Scan(
		&ipText, &source, &r.ThreatLevel, &r.DetectionDate, &r.FirstSeen,
		&r.LastSeen, &r.ExpiresAt, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	addr, err := netip.ParseAddr(ipText)
	if err != nil {
		return Record{}, fmt.Errorf("parsing stored ip %q: %w", ipText, err)
	}
	r.IP = addr
	r.Source = make(SourceSet, len(source))
	for i, s := range source {
		r.Source[i] = Source(s)
	}
	return r, nil
}

// Get returns the record for a single IP, or pgx.ErrNoRows if absent.
func (s *Store) Get(ctx context.Context, ip netip.Addr) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ip_records WHERE ip = $1`
	row := s.pool.QueryRow(ctx, query, ip.String())
	return scanRecord(row)
}

// UpsertInput is one grouped, canonicalised candidate record ready to merge
// into the store. Source is the single-source attribution contributed by
// this batch; the merge (ON CONFLICT) unions it into the stored set.
type UpsertInput struct {
	IP            netip.Addr
	Source        Source
	ThreatLevel   ThreatLevel
	DetectionDate time.Time
	ExpiresAt     time.Time
}

// UpsertBatch merges a batch of candidate records into the store inside a
// single transaction (contract (b)): readers see either none or all of a
// batch's effects (I5). The merge is commutative and monotone (P2): it
// extends expires_at, unions the source set, and keeps the earliest
// first_seen / latest last_seen / highest threat_level across concurrent
// batches touching the same ip.
func (s *Store) UpsertBatch(ctx context.Context, inputs []UpsertInput) (inserted, updated int, err error) {
	if len(inputs) == 0 {
		return 0, 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO ip_records (ip, source, threat_level, detection_date, first_seen, last_seen, expires_at, is_active)
		VALUES ($1, ARRAY[$2]::text[], $3, $4, $4, $4, $5, true)
		ON CONFLICT (ip) DO UPDATE SET
			source = (
				SELECT array_agg(DISTINCT s) FROM unnest(ip_records.source || EXCLUDED.source) AS s
			),
			threat_level = CASE
				WHEN rank_of(EXCLUDED.threat_level) > rank_of(ip_records.threat_level)
				THEN EXCLUDED.threat_level ELSE ip_records.threat_level END,
			first_seen = LEAST(ip_records.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(ip_records.last_seen, EXCLUDED.last_seen),
			expires_at = GREATEST(ip_records.expires_at, EXCLUDED.expires_at),
			is_active = true,
			updated_at = now()
		RETURNING (xmax = 0) AS was_insert`

	for _, in := range inputs {
		var wasInsert bool
		row := tx.QueryRow(ctx, query, in.IP.String(), string(in.Source), string(in.ThreatLevel), in.DetectionDate, in.ExpiresAt)
		if err := row.Scan(&wasInsert); err != nil {
			return 0, 0, fmt.Errorf("upserting ip %s: %w", in.IP, err)
		}
		if wasInsert {
			inserted++
		} else {
			updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing upsert transaction: %w", err)
	}
	return inserted, updated, nil
}

// Iterator streams active records without materialising the whole set.
type Iterator struct {
	rows pgx.Rows
}

// Next advances the iterator. Call Record after a true return.
func (it *Iterator) Next() bool { return it.rows.Next() }

// Record returns the current row. Only valid after Next returns true.
func (it *Iterator) Record() (Record, error) {
	return scanRecord(it.rows)
}

// Err returns any error encountered during iteration.
func (it *Iterator) Err() error { return it.rows.Err() }

// Close releases the iterator's underlying connection.
func (it *Iterator) Close() { it.rows.Close() }

// QueryActive returns an Iterator over every record active as of now
// (is_active AND expires_at > now). Restartable by re-invoking with the
// same now.
func (s *Store) QueryActive(ctx context.Context, now time.Time) (*Iterator, error) {
	query := `SELECT ` + recordColumns + ` FROM ip_records WHERE is_active AND expires_at > $1 ORDER BY ip`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("querying active records: %w", err)
	}
	return &Iterator{rows: rows}, nil
}

// QueryBySource returns every record whose attribution set contains source.
func (s *Store) QueryBySource(ctx context.Context, source Source) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM ip_records WHERE $1 = ANY(source) ORDER BY ip`
	rows, err := s.pool.Query(ctx, query, string(source))
	if err != nil {
		return nil, fmt.Errorf("querying records by source: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkExpired flips is_active to false for every record whose expiry has
// passed as of now. Idempotent by construction — re-running with the same
// or later now affects no additional rows beyond those newly expired.
func (s *Store) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE ip_records SET is_active = false, updated_at = now() WHERE is_active AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("marking expired records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Stats groups active records by source, threat level, and day over records
// detected at or after since, backing the analytics formatter (§4.7). A
// record attributed to several sources counts once under each.
func (s *Store) Stats(ctx context.Context, since time.Time) ([]Stats, error) {
	query := `
		SELECT src, threat_level, date_trunc('day', detection_date) AS day, count(*)
		FROM ip_records, unnest(source) AS src
		WHERE is_active AND detection_date >= $1
		GROUP BY src, threat_level, day
		ORDER BY day DESC`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	var out []Stats
	for rows.Next() {
		var st Stats
		if err := rows.Scan(&st.Source, &st.ThreatLevel, &st.Day, &st.Count); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
