package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campaign_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect schemas. Both keep the full key plus its customer and stage
// columns so stage listings avoid key parsing in SQL.
const (
	postgresStateSchema = `
CREATE TABLE IF NOT EXISTS pipeline_state (
    key         TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    stage       TEXT NOT NULL,
    value       JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_state_customer ON pipeline_state (customer_id);`

	sqliteStateSchema = `
CREATE TABLE IF NOT EXISTS pipeline_state (
    key         TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    stage       TEXT NOT NULL,
    value       TEXT NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_state_customer ON pipeline_state (customer_id);`
)

const upsertState = `
INSERT INTO pipeline_state (key, customer_id, stage, value, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// SQLStateStore stores stage outputs in a pipeline_state table. It runs on
// Postgres (pgx stdlib driver) and SQLite.
type SQLStateStore struct {
	db       *sqlx.DB
	postgres bool
}

// NewPostgresStateStore wraps an sqlx handle opened with the "pgx" driver.
func NewPostgresStateStore(db *sqlx.DB) *SQLStateStore {
	return &SQLStateStore{db: db, postgres: true}
}

// OpenSQLiteStateStore opens (or creates) a SQLite database at path.
func OpenSQLiteStateStore(path string) (*SQLStateStore, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// SQLite는 단일 writer
	db.SetMaxOpenConns(1)
	return &SQLStateStore{db: db}, nil
}

// EnsureSchema creates the table if needed.
func (s *SQLStateStore) EnsureSchema(ctx context.Context) error {
	schema := sqliteStateSchema
	if s.postgres {
		schema = postgresStateSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStateStore) Set(ctx context.Context, key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	customerID, stage := splitKey(key)

	_, err = s.db.ExecContext(ctx, s.db.Rebind(upsertState),
		key, customerID, stage, string(data), time.Now().UTC())
	return err
}

func (s *SQLStateStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	if dest == nil {
		return false, ErrNilDest
	}
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT value FROM pipeline_state WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(raw), dest)
}

func (s *SQLStateStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM pipeline_state WHERE key = ?`), key)
	return err
}

// Stages lists persisted stage outputs for a customer, sorted.
func (s *SQLStateStore) Stages(ctx context.Context, customerID string) ([]string, error) {
	if s.postgres {
		var stages pq.StringArray
		err := s.db.GetContext(ctx, &stages, `
			SELECT COALESCE(array_agg(stage ORDER BY stage), '{}')
			FROM pipeline_state
			WHERE customer_id = $1 AND stage NOT LIKE '%:error' AND stage <> 'summary'`, customerID)
		return []string(stages), err
	}

	var stages []string
	err := s.db.SelectContext(ctx, &stages, `
		SELECT stage FROM pipeline_state
		WHERE customer_id = ? AND stage NOT LIKE '%:error' AND stage <> 'summary'
		ORDER BY stage`, customerID)
	return stages, err
}

// DB exposes the handle for pool metrics.
func (s *SQLStateStore) DB() *sql.DB {
	return s.db.DB
}

func (s *SQLStateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStateStore) Close() error {
	return s.db.Close()
}

var _ out.StateStore = (*SQLStateStore)(nil)
