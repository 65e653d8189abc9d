package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/heysubinoy/etagkv/pkg/kv"
)

const createStateTable = `
CREATE TABLE IF NOT EXISTS state_entries (
    key        TEXT PRIMARY KEY,
    value      BLOB,
    etag       TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// SQLiteStore persists items in SQLite. Each conditional write is a single
// UPDATE or DELETE filtered on the expected etag, so SQLite serializes the
// compare-and-swap.
type SQLiteStore struct {
	sqlDB *sql.DB
}

var _ kv.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path. The special path
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(createStateTable); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: ensure state table: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (kv.Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return kv.Item{}, false, err
	}
	var (
		value []byte
		etag  string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value, etag FROM state_entries WHERE key = ?`, key,
	).Scan(&value, &etag)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Item{}, false, nil
	}
	if err != nil {
		return kv.Item{}, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return kv.Item{Key: key, Value: value, ETag: etag}, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, etag string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	next := kv.NewETag()
	now := time.Now().UTC().UnixMilli()
	if value == nil {
		value = []byte{}
	}

	if etag == "" {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO state_entries (key, value, etag, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value, etag = excluded.etag, updated_at = excluded.updated_at`,
			key, value, next, now,
		)
		if err != nil {
			return "", fmt.Errorf("store: put %q: %w", key, err)
		}
		return next, nil
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE state_entries SET value = ?, etag = ?, updated_at = ? WHERE key = ? AND etag = ?`,
		value, next, now, key, etag,
	)
	if err != nil {
		return "", fmt.Errorf("store: put %q: %w", key, err)
	}
	if err := expectOneRow(res); err != nil {
		return "", err
	}
	return next, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string, etag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if etag == "" {
		if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM state_entries WHERE key = ?`, key); err != nil {
			return fmt.Errorf("store: delete %q: %w", key, err)
		}
		return nil
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM state_entries WHERE key = ? AND etag = ?`, key, etag)
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return kv.ErrETagMismatch
	}
	return nil
}
