package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS apis (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		owner_id UUID NOT NULL REFERENCES users (id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS apis_owner_id_idx ON apis (owner_id)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		api_id UUID NOT NULL REFERENCES apis (id),
		key_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		name TEXT,
		owner_id TEXT,
		meta JSONB NOT NULL DEFAULT '{}'::jsonb,
		allowed_ips TEXT[] NOT NULL DEFAULT '{}',
		rate_limit_max INTEGER,
		rate_limit_window INTEGER,
		remaining_uses INTEGER CHECK (remaining_uses >= 0),
		max_uses INTEGER,
		refill_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		refill_amount INTEGER,
		refill_interval INTEGER,
		last_refill_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at TIMESTAMPTZ,
		delete_protection BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_used_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS api_keys_api_id_idx ON api_keys (api_id)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		api_key_id UUID NOT NULL REFERENCES api_keys (id),
		action TEXT NOT NULL,
		ip_address TEXT,
		user_agent TEXT,
		context JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_key_created_idx ON audit_logs (api_key_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_created_idx ON audit_logs (created_at)`,
}

// Migrate creates the schema when missing. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool, logger *zap.Logger) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	logger.Info("Database schema is up to date", zap.Int("statements", len(migrations)))
	return nil
}
