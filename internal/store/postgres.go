package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS knowledge_items (
	key          TEXT PRIMARY KEY,
	statement    TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	status       TEXT NOT NULL,
	source_refs  JSONB NOT NULL DEFAULT '[]',
	merge_count  INTEGER NOT NULL DEFAULT 0,
	merged_into  TEXT NOT NULL DEFAULT '',
	embedding    vector,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_active ON knowledge_items (merged_into, confidence);

CREATE TABLE IF NOT EXISTS backups (
	id          UUID PRIMARY KEY,
	target      TEXT NOT NULL,
	content     BYTEA NOT NULL,
	checksum    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_backups_target ON backups (target, created_at);

CREATE TABLE IF NOT EXISTS proposals (
	id           UUID PRIMARY KEY,
	target       TEXT NOT NULL,
	diff         TEXT NOT NULL,
	rationale    TEXT NOT NULL,
	category     TEXT NOT NULL,
	risk_score   DOUBLE PRECISION NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	fingerprint  TEXT NOT NULL,
	backup_id    UUID,
	baseline     JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	applied_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_proposals_category ON proposals (category, status);
CREATE INDEX IF NOT EXISTS idx_proposals_fingerprint ON proposals (fingerprint, status);
`

// MigratePostgres creates the tables the Postgres stores need.
func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
