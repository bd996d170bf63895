// Package journal records tool invocation outcomes in a local SQLite file.
//
// The journal is a debugging aid, not a correctness-bearing store: nothing
// reads it on the hot path, and deleting the file loses nothing but history.
// It is disabled unless a path is configured.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS invocations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	tool        TEXT NOT NULL,
	operation   TEXT NOT NULL DEFAULT '',
	entity      TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invocations_at ON invocations(at);
`

// Record is one journaled tool invocation.
type Record struct {
	Tool      string
	Operation string
	Entity    string
	Success   bool
	Message   string
	Duration  time.Duration
	At        time.Time
}

// Journal wraps the SQLite connection.
type Journal struct {
	conn *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

// Close closes the underlying connection. Safe on a nil journal.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.conn.Close()
}

// Append writes one record. Safe on a nil journal so callers need no
// enabled-check at every call site.
func (j *Journal) Append(r Record) error {
	if j == nil {
		return nil
	}
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := j.conn.Exec(`
		INSERT INTO invocations (tool, operation, entity, success, message, duration_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Tool, r.Operation, r.Entity, boolToInt(r.Success), r.Message, r.Duration.Milliseconds(), at)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent returns the newest records, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.conn.Query(`
		SELECT tool, operation, entity, success, message, duration_ms, at
		FROM invocations ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var success int
		var durMS int64
		if err := rows.Scan(&r.Tool, &r.Operation, &r.Entity, &success, &r.Message, &durMS, &r.At); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Success = success != 0
		r.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
