package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

const (
	insertSnapshotSQL = `INSERT INTO asset_snapshots (
        symbol,
        pair,
        observed_at,
        price,
        change_24h_pct,
        session_change_pct,
        quote_volume,
        session_start
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol, observed_at) DO UPDATE
    SET
        pair               = EXCLUDED.pair,
        price              = EXCLUDED.price,
        change_24h_pct     = EXCLUDED.change_24h_pct,
        session_change_pct = EXCLUDED.session_change_pct,
        quote_volume       = EXCLUDED.quote_volume,
        session_start      = EXCLUDED.session_start;`

	upsertLatestSQL = `INSERT INTO asset_latest (
        symbol,
        pair,
        observed_at,
        price,
        change_24h_pct,
        session_change_pct,
        quote_volume,
        session_start
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (symbol) DO UPDATE
    SET
        pair               = EXCLUDED.pair,
        observed_at        = EXCLUDED.observed_at,
        price              = EXCLUDED.price,
        change_24h_pct     = EXCLUDED.change_24h_pct,
        session_change_pct = EXCLUDED.session_change_pct,
        quote_volume       = EXCLUDED.quote_volume,
        session_start      = EXCLUDED.session_start;`

	// Numeric columns come back as text so they can be rehydrated into
	// decimals without binary-format surprises.
	selectColumns = `symbol,
        pair,
        observed_at,
        price::text,
        change_24h_pct::text,
        session_change_pct::text,
        quote_volume::text,
        session_start,
        created_at`

	listLatestSQL = `SELECT ` + selectColumns + `
    FROM asset_latest
    ORDER BY quote_volume DESC
    LIMIT $1;`

	listHistorySQL = `SELECT ` + selectColumns + `
    FROM asset_snapshots
    WHERE symbol = $1
      AND observed_at >= $2
      AND observed_at < $3
    ORDER BY observed_at;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM asset_snapshots;`

	deleteSnapshotsBeforeSQL = `DELETE FROM asset_snapshots WHERE observed_at < $1;`
)

// SnapshotStore defines the persistence operations the analytics engine's
// consumers rely on.
type SnapshotStore interface {
	UpsertCycle(ctx context.Context, records []SnapshotRecord) error
	ListLatest(ctx context.Context, limit int) ([]SnapshotRecord, error)
	ListSymbolHistory(ctx context.Context, symbol string, from, to time.Time) ([]SnapshotRecord, error)
	CountSnapshots(ctx context.Context) (int64, error)
	DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) error
}

// Store persists snapshots and latest state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertCycle writes one polling cycle's records: a history row per asset
// keyed (symbol, observed_at) and the per-symbol latest row. Upserts keep the
// operation idempotent under at-least-once delivery.
func (s *Store) UpsertCycle(ctx context.Context, records []SnapshotRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		args := []any{
			rec.Symbol,
			rec.Pair,
			rec.ObservedAt,
			rec.Price.String(),
			rec.Change24hPct.String(),
			rec.SessionChangePct.String(),
			rec.QuoteVolume.String(),
			rec.SessionStart,
		}
		batch.Queue(insertSnapshotSQL, args...)
		batch.Queue(upsertLatestSQL, args...)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("upsert cycle records: %w", execErr)
		}
	}
	return nil
}

// ListLatest returns the latest known state per symbol, largest markets first.
func (s *Store) ListLatest(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listLatestSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list latest snapshots: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListSymbolHistory lists one symbol's history within [from, to).
func (s *Store) ListSymbolHistory(ctx context.Context, symbol string, from, to time.Time) ([]SnapshotRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list symbol history: %w", queryErr)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountSnapshots counts stored history rows.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

// DeleteSnapshotsBefore prunes history older than the given instant.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return nil
}

func collectRecords(rows pgx.Rows) ([]SnapshotRecord, error) {
	records := make([]SnapshotRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanRecord(rows pgx.Rows) (SnapshotRecord, error) {
	var (
		rec        SnapshotRecord
		priceStr   string
		changeStr  string
		sessionStr string
		volumeStr  string
	)

	if err := rows.Scan(
		&rec.Symbol,
		&rec.Pair,
		&rec.ObservedAt,
		&priceStr,
		&changeStr,
		&sessionStr,
		&volumeStr,
		&rec.SessionStart,
		&rec.CreatedAt,
	); err != nil {
		return SnapshotRecord{}, err
	}

	var err error
	if rec.Price, err = decimal.NewFromString(priceStr); err != nil {
		return SnapshotRecord{}, fmt.Errorf("parse price: %w", err)
	}
	if rec.Change24hPct, err = decimal.NewFromString(changeStr); err != nil {
		return SnapshotRecord{}, fmt.Errorf("parse 24h change: %w", err)
	}
	if rec.SessionChangePct, err = decimal.NewFromString(sessionStr); err != nil {
		return SnapshotRecord{}, fmt.Errorf("parse session change: %w", err)
	}
	if rec.QuoteVolume, err = decimal.NewFromString(volumeStr); err != nil {
		return SnapshotRecord{}, fmt.Errorf("parse quote volume: %w", err)
	}

	return rec, nil
}

var _ SnapshotStore = (*Store)(nil)
