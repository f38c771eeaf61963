// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                UUID PRIMARY KEY,
		email             TEXT NOT NULL UNIQUE,
		password          TEXT NOT NULL,
		display_name      TEXT NOT NULL,
		payment_link_base TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL,
		departure   TEXT NOT NULL,
		destination TEXT NOT NULL,
		state       TEXT NOT NULL,
		seq         BIGINT NOT NULL DEFAULT 0,
		snapshot    JSONB NOT NULL,
		abandoned   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE rooms ADD COLUMN IF NOT EXISTS seq BIGINT NOT NULL DEFAULT 0`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id           UUID PRIMARY KEY,
		room_id      UUID NOT NULL,
		user_id      UUID NOT NULL,
		display_name TEXT NOT NULL,
		text         TEXT NOT NULL,
		sent_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_sent ON chat_messages (room_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id          UUID PRIMARY KEY,
		room_id     UUID NOT NULL,
		reviewer_id UUID NOT NULL,
		reviewee_id UUID NOT NULL,
		score       SMALLINT NOT NULL CHECK (score BETWEEN 1 AND 5),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (room_id, reviewer_id, reviewee_id)
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_reviewee ON reviews (reviewee_id)`,
}

// EnsureSchema creates the tables this service writes to if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema: %w", err)
			}
		}
		return nil
	})
}
