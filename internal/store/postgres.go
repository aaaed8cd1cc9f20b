package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the backend uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend implements Backend using pgxpool.
type PostgresBackend struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresBackend with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// The pipeline is sequential; a small pool is plenty.
	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS marketmap_kv (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	seq        BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (bucket, key)
);

CREATE INDEX IF NOT EXISTS idx_marketmap_kv_bucket_seq ON marketmap_kv(bucket, seq);
`

func (s *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresBackend) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresBackend) Get(ctx context.Context, bucket, key string) (json.RawMessage, error) {
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM marketmap_kv WHERE bucket = $1 AND key = $2`, bucket, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", bucket, key)
	}
	return json.RawMessage(value), nil
}

// Put upserts a value. seq is only assigned on insert so ordering follows
// first insertion.
func (s *PostgresBackend) Put(ctx context.Context, bucket, key string, value json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO marketmap_kv (bucket, key, value, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		bucket, key, []byte(value), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: put %s/%s", bucket, key)
	}
	return nil
}

func (s *PostgresBackend) List(ctx context.Context, bucket string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM marketmap_kv WHERE bucket = $1 ORDER BY seq`, bucket,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", bucket)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, Record{Key: key, Value: json.RawMessage(value)})
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}
