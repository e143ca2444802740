// Package postgres provides a PostgreSQL implementation of the storage interface.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitrine/vitrine/pkg/storage"
)

const schema = `CREATE TABLE IF NOT EXISTS vitrine_sessions (
	session_id TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vitrine_sessions_updated ON vitrine_sessions (updated_at DESC);`

// PostgresStorage persists one jsonb row per session.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and ensures the schema exists.
func New(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("connect postgres: %w", err)}
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("init schema: %w", err)}
	}

	return &PostgresStorage{pool: pool}, nil
}

// Get retrieves a session record.
func (s *PostgresStorage) Get(ctx context.Context, sessionID string) (*storage.Record, error) {
	rec := storage.Record{SessionID: sessionID}
	err := s.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM vitrine_sessions WHERE session_id=$1`,
		sessionID,
	).Scan(&rec.Data, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &storage.NotFoundError{SessionID: sessionID}
		}
		return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("get session: %w", err)}
	}
	return &rec, nil
}

// Put upserts a session record.
func (s *PostgresStorage) Put(ctx context.Context, rec *storage.Record) error {
	if err := storage.Validate(rec); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO vitrine_sessions (session_id, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		rec.SessionID,
		string(rec.Data),
		rec.UpdatedAt,
	)
	if err != nil {
		return &storage.StorageUnavailableError{Cause: fmt.Errorf("put session: %w", err)}
	}
	return nil
}

// List pages session ids, most recently updated first.
func (s *PostgresStorage) List(ctx context.Context, filter *storage.ListFilter) ([]string, int, error) {
	f := filter.Normalize()

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vitrine_sessions`).Scan(&total); err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: fmt.Errorf("count sessions: %w", err)}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT session_id FROM vitrine_sessions
		 ORDER BY updated_at DESC, session_id ASC LIMIT $1 OFFSET $2`,
		f.Limit,
		f.Offset,
	)
	if err != nil {
		return nil, 0, &storage.StorageUnavailableError{Cause: fmt.Errorf("list sessions: %w", err)}
	}
	defer rows.Close()

	ids := make([]string, 0, f.Limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, 0, fmt.Errorf("scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate session rows: %w", err)
	}
	return ids, total, nil
}

// Ping checks connectivity.
func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &storage.StorageUnavailableError{Cause: err}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
