package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Sort keys compare bytewise, so the sk column uses the C collation.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS teams (
		team_id TEXT PRIMARY KEY,
		team_name TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		storage_limit_bytes BIGINT,
		storage_limit_gb BIGINT,
		used_bytes BIGINT NOT NULL DEFAULT 0,
		subscription_status TEXT NOT NULL DEFAULT '',
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
		current_period_end TIMESTAMPTZ,
		cancel_at TIMESTAMPTZ,
		past_due_since TIMESTAMPTZ,
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		stripe_price_id TEXT NOT NULL DEFAULT '',
		last_event_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		team_code TEXT,
		deleted_at TIMESTAMPTZ
	)`,
	`ALTER TABLE teams ADD COLUMN IF NOT EXISTS team_code TEXT`,
	`ALTER TABLE teams ADD COLUMN IF NOT EXISTS deleted_at TIMESTAMPTZ`,
	`CREATE UNIQUE INDEX IF NOT EXISTS teams_code_idx ON teams (team_code) WHERE team_code IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS teams_subscription_idx ON teams (stripe_subscription_id) WHERE stripe_subscription_id <> ''`,
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (team_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS team_members_user_idx ON team_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS invite_tokens (
		token_hash TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ,
		user_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS invite_tokens_team_idx ON invite_tokens (team_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token_hash TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS signin_codes (
		email TEXT PRIMARY KEY,
		code_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS media (
		team_id TEXT NOT NULL,
		media_id TEXT NOT NULL,
		sk TEXT COLLATE "C" NOT NULL,
		object_key TEXT NOT NULL,
		thumb_key TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		album_name TEXT NOT NULL,
		uploader_user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (team_id, media_id)
	)`,
	`CREATE INDEX IF NOT EXISTS media_team_sk_idx ON media (team_id, sk DESC)`,
	`CREATE TABLE IF NOT EXISTS billing_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
