package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createManifestSQL = `CREATE TABLE IF NOT EXISTS snapshot_manifest (
        file_path       TEXT PRIMARY KEY,
        kind            TEXT NOT NULL,
        snapshot_date   DATE NOT NULL,
        label           TEXT NOT NULL DEFAULT '',
        sport           TEXT NOT NULL,
        requested_at    TIMESTAMPTZ NOT NULL,
        api_snapshot_at TIMESTAMPTZ,
        row_count       INTEGER NOT NULL,
        run_id          UUID NOT NULL,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createManifestIndexSQL = `CREATE INDEX IF NOT EXISTS snapshot_manifest_date_label_idx
        ON snapshot_manifest (kind, snapshot_date, label);`

	insertManifestSQL = `INSERT INTO snapshot_manifest (
        file_path,
        kind,
        snapshot_date,
        label,
        sport,
        requested_at,
        api_snapshot_at,
        row_count,
        run_id
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (file_path) DO NOTHING;`

	snapshotPathSQL = `SELECT file_path
        FROM snapshot_manifest
        WHERE kind = $1 AND snapshot_date = $2 AND label = $3
        ORDER BY created_at DESC
        LIMIT 1;`

	listManifestBetweenSQL = `SELECT
        file_path,
        kind,
        snapshot_date,
        label,
        sport,
        requested_at,
        api_snapshot_at,
        row_count,
        run_id,
        created_at
    FROM snapshot_manifest
    WHERE snapshot_date >= $1
      AND snapshot_date <= $2
    ORDER BY snapshot_date, kind, label, requested_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ManifestStore mirrors the date → collected-labels mapping of the file tree.
type ManifestStore interface {
	RecordSnapshot(ctx context.Context, entry ManifestEntry) error
	SnapshotPath(ctx context.Context, kind SnapshotKind, date time.Time, label string) (string, bool, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]ManifestEntry, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed manifest.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ ManifestStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)

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

// EnsureSchema creates the manifest table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createManifestSQL, createManifestIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure manifest schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// RecordSnapshot stores a manifest entry; re-recording the same file is a no-op.
func (s *Store) RecordSnapshot(ctx context.Context, entry ManifestEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var apiSnapshot interface{}
	if entry.APISnapshotAt != nil {
		apiSnapshot = *entry.APISnapshotAt
	}

	_, execErr := pool.Exec(ctx, insertManifestSQL,
		entry.FilePath,
		string(entry.Kind),
		entry.SnapshotDate,
		entry.Label,
		entry.Sport,
		entry.RequestedAt,
		apiSnapshot,
		entry.RowCount,
		entry.RunID,
	)
	if execErr != nil {
		return fmt.Errorf("record snapshot: %w", execErr)
	}
	return nil
}

// SnapshotPath returns the file recorded for a (kind, date, label) pair, if any.
func (s *Store) SnapshotPath(ctx context.Context, kind SnapshotKind, date time.Time, label string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var path string
	if scanErr := pool.QueryRow(ctx, snapshotPathSQL, string(kind), date, label).Scan(&path); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("snapshot path: %w", scanErr)
	}
	return path, true, nil
}

// ListBetween lists manifest entries with snapshot dates in [from, to].
func (s *Store) ListBetween(ctx context.Context, from, to time.Time) ([]ManifestEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listManifestBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list manifest between: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]ManifestEntry, 0)
	for rows.Next() {
		entry, scanErr := scanManifestEntry(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

func scanManifestEntry(rows pgx.Rows) (ManifestEntry, error) {
	var (
		entry       ManifestEntry
		kind        string
		apiSnapshot *time.Time
	)
	if err := rows.Scan(
		&entry.FilePath,
		&kind,
		&entry.SnapshotDate,
		&entry.Label,
		&entry.Sport,
		&entry.RequestedAt,
		&apiSnapshot,
		&entry.RowCount,
		&entry.RunID,
		&entry.CreatedAt,
	); err != nil {
		return ManifestEntry{}, err
	}
	entry.Kind = SnapshotKind(kind)
	entry.APISnapshotAt = apiSnapshot
	return entry, nil
}
