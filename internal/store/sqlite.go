package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteBackend implements Backend using modernc.org/sqlite.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteBackend{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (bucket, key)
);

CREATE INDEX IF NOT EXISTS idx_kv_bucket_seq ON kv(bucket, seq);
`

func (s *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) Get(ctx context.Context, bucket, key string) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE bucket = ? AND key = ?`, bucket, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", bucket, key)
	}
	return json.RawMessage(value), nil
}

// Put inserts or replaces a value. A new key takes the next sequence number
// of its bucket; an existing key keeps its own.
func (s *SQLiteBackend) Put(ctx context.Context, bucket, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (bucket, key, value, seq, updated_at)
		 VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv WHERE bucket = ?), ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		bucket, key, string(value), bucket, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put %s/%s", bucket, key)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context, bucket string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE bucket = ? ORDER BY seq`, bucket,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s", bucket)
	}
	defer rows.Close() //nolint:errcheck

	var out []Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, Record{Key: key, Value: json.RawMessage(value)})
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}
