package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS knowledge_items (
	key          TEXT PRIMARY KEY,
	statement    TEXT NOT NULL,
	confidence   REAL NOT NULL,
	status       TEXT NOT NULL,
	source_refs  TEXT NOT NULL DEFAULT '[]',
	merge_count  INTEGER NOT NULL DEFAULT 0,
	merged_into  TEXT NOT NULL DEFAULT '',
	embedding    BLOB,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_active ON knowledge_items (merged_into, confidence);

CREATE TABLE IF NOT EXISTS backups (
	id          TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	content     BLOB NOT NULL,
	checksum    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backups_target ON backups (target, created_at);

CREATE TABLE IF NOT EXISTS proposals (
	id           TEXT PRIMARY KEY,
	target       TEXT NOT NULL,
	diff         TEXT NOT NULL,
	rationale    TEXT NOT NULL,
	category     TEXT NOT NULL,
	risk_score   REAL NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	fingerprint  TEXT NOT NULL,
	backup_id    TEXT,
	baseline     TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	applied_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_proposals_category ON proposals (category, status);
CREATE INDEX IF NOT EXISTS idx_proposals_fingerprint ON proposals (fingerprint, status);
`

// OpenSQLite opens (creating if needed) a SQLite database and runs migrations.
// Writes are synchronous so an acknowledged write survives a crash.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps per-connection pragmas in force and avoids
	// SQLITE_BUSY between our own writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
