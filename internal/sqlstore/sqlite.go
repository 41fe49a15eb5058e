// Package sqlstore persists inbox items and records in SQLite.
package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS inbox_items (
	id                TEXT PRIMARY KEY,
	original_filename TEXT NOT NULL,
	storage_path      TEXT NOT NULL,
	uploaded_at       TEXT NOT NULL,
	checksum          TEXT NOT NULL UNIQUE,
	user_id           TEXT NOT NULL,
	status            TEXT NOT NULL,
	ocr               TEXT,
	failure_reason    TEXT NOT NULL DEFAULT '',
	linked_id         TEXT NOT NULL DEFAULT '',
	linked_type       TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS inbox_items_status ON inbox_items (status, user_id);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	user_id       TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL,
	date          TEXT NOT NULL,
	amount_cents  INTEGER NOT NULL,
	currency      TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	inbox_item_id TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_kind ON records (kind, date);
`

// Open opens the SQLite database at path and applies the schema
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// A single connection keeps writes serialised
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
