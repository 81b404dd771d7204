// Package db persists trades and bot configurations in PostgreSQL.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
)

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// New connects to PostgreSQL and verifies the connection
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger := config.NewLogger("db")
	logger.Info().Msg("Database connected")

	return &DB{Pool: pool, log: logger}, nil
}

// Close releases the pool
func (d *DB) Close() {
	d.Pool.Close()
}

// Migrate creates the schema when missing
func (d *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS bot_configs (
			id          TEXT PRIMARY KEY,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			budget      DOUBLE PRECISION NOT NULL,
			config_json JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id          UUID PRIMARY KEY,
			config_id   TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			status      TEXT NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price  DOUBLE PRECISION,
			pnl         DOUBLE PRECISION,
			pnl_pct     DOUBLE PRECISION,
			reason      TEXT,
			opened_at   TIMESTAMPTZ NOT NULL,
			closed_at   TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_config_status ON trades (config_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened_at ON trades (opened_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	d.log.Info().Msg("Schema migrated")
	return nil
}
