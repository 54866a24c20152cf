package db

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id BIGINT PRIMARY KEY,
		balance DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS balance_changes (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users (user_id),
		change DOUBLE PRECISION NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_balance_changes_user_time
		ON balance_changes (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS games_played (
		user_id BIGINT NOT NULL REFERENCES users (user_id),
		played_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_games_played_user_time
		ON games_played (user_id, played_at)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		user_id BIGINT NOT NULL,
		key TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, key)
	)`,
}

// EnsureSchema applies the ledger schema idempotently. Rows in users,
// balance_changes and games_played are never deleted, so there is no
// migration machinery beyond IF NOT EXISTS.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
