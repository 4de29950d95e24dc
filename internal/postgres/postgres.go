// Package postgres backs the replay, audit, license and token stores with
// PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS payment_claims (
		reference  TEXT PRIMARY KEY,
		payer      TEXT NOT NULL DEFAULT '',
		amount     TEXT NOT NULL DEFAULT '',
		resource   TEXT NOT NULL DEFAULT '',
		claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS crawl_logs (
		id            UUID PRIMARY KEY,
		subject       TEXT NOT NULL DEFAULT '',
		publisher     TEXT NOT NULL DEFAULT '',
		resource      TEXT NOT NULL DEFAULT '',
		amount        TEXT NOT NULL DEFAULT '',
		reference     TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		ledger_logged BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS crawl_logs_unlogged_idx
		ON crawl_logs (created_at) WHERE NOT ledger_logged`,
	`CREATE TABLE IF NOT EXISTS publisher_licenses (
		owner      TEXT PRIMARY KEY,
		active     BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS access_tokens (
		token      TEXT PRIMARY KEY,
		revoked    BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables the stores need. It is safe to run repeatedly.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
