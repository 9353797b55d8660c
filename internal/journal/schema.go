package journal

import (
	"context"
	"fmt"
)

const createTable = `
CREATE TABLE IF NOT EXISTS connection_events (
	id          UUID PRIMARY KEY,
	conn_id     UUID NOT NULL,
	kind        TEXT NOT NULL,
	code        INTEGER NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	size        INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
)`

const createIndex = `
CREATE INDEX IF NOT EXISTS connection_events_conn_id_idx
	ON connection_events (conn_id, occurred_at)`

const insertRow = `
	INSERT INTO connection_events (id, conn_id, kind, code, reason, size, detail, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING
`

// EnsureSchema creates the journal table and index if they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := db.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}
