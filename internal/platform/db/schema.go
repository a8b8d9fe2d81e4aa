package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          BIGSERIAL PRIMARY KEY,
		actor       TEXT        NOT NULL,
		action      TEXT        NOT NULL,
		entity      TEXT        NOT NULL,
		meta        JSONB       NOT NULL DEFAULT '{}'::jsonb,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_occurred_at ON audit_logs (occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs (actor)`,
}

// Migrate applies the schema idempotently. All statements run in one
// transaction so a partial bootstrap never sticks.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("platform/db: migrate: %w", err)
			}
		}
		return nil
	})
}
