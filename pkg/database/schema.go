package database

import (
	"database/sql"
	"fmt"
)

// Schema for the three persisted record kinds. The roster is stored as a
// JSON array to preserve join order; film catalog order is rowid order,
// which is insertion order. The UNIQUE constraints back the two identity
// invariants: one external id per session, one vote per (film, participant).
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	code         TEXT NOT NULL UNIQUE,
	created_by   TEXT NOT NULL,
	participants TEXT NOT NULL DEFAULT '[]',
	active       INTEGER NOT NULL DEFAULT 1,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS films (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	external_id INTEGER NOT NULL,
	title       TEXT NOT NULL,
	year        INTEGER NOT NULL DEFAULT 0,
	poster      TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	rating      REAL NOT NULL DEFAULT 0,
	added_by    TEXT NOT NULL,
	added_at    TIMESTAMP NOT NULL,
	UNIQUE(session_id, external_id)
);

CREATE TABLE IF NOT EXISTS votes (
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	film_id     TEXT NOT NULL,
	participant TEXT NOT NULL,
	verdict     TEXT NOT NULL CHECK (verdict IN ('like', 'dislike')),
	PRIMARY KEY (session_id, film_id, participant)
);

CREATE INDEX IF NOT EXISTS idx_films_session ON films(session_id);
CREATE INDEX IF NOT EXISTS idx_votes_session ON votes(session_id);
`

// ApplySchema creates the tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
