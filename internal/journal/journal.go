// Package journal records workflow events in a SQLite database under
// .workflow/. The journal is an append-only activity log: operations
// write one row per meaningful action and the history command reads
// them back. It is never consulted to decide the current phase.
package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Journal wraps the SQLite connection for the workflow event log.
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal database at the given path.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	j := &Journal{conn: conn, path: path}
	if err := j.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the journal connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS workflow_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT NOT NULL,
    phase      TEXT,
    detail     TEXT,
    timestamp  TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_workflow_events_recent ON workflow_events(id DESC);
CREATE INDEX IF NOT EXISTS idx_workflow_events_phase ON workflow_events(phase);
`

// Migrate applies the journal schema.
func (j *Journal) Migrate() error {
	var count int
	err := j.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := j.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (j *Journal) Reset() error {
	tables := []string{"workflow_events", "schema_version"}
	for _, t := range tables {
		if _, err := j.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return j.Migrate()
}

// Event is a row in the workflow_events table.
type Event struct {
	ID        int
	Event     string
	Phase     string
	Detail    string
	Timestamp string
}

// Log appends an event to the journal.
func (j *Journal) Log(event, phase, detail string) error {
	_, err := j.conn.Exec(
		`INSERT INTO workflow_events (event, phase, detail) VALUES (?, ?, ?)`,
		event, phase, detail,
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, most recent first.
func (j *Journal) Recent(limit int) ([]Event, error) {
	rows, err := j.conn.Query(
		`SELECT id, event, phase, detail, timestamp
		 FROM workflow_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var phase, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Event, &phase, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if phase.Valid {
			e.Phase = phase.String
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PhaseStat summarizes journal activity for one phase.
type PhaseStat struct {
	Phase  string
	Events int
	First  string
	Last   string
}

// PhaseStats returns per-phase event counts with first and last
// timestamps, in the order each phase first appeared.
func (j *Journal) PhaseStats() ([]PhaseStat, error) {
	rows, err := j.conn.Query(`
		SELECT phase, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM workflow_events
		WHERE phase IS NOT NULL AND phase != ''
		GROUP BY phase
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("get phase stats: %w", err)
	}
	defer rows.Close()

	var stats []PhaseStat
	for rows.Next() {
		var s PhaseStat
		if err := rows.Scan(&s.Phase, &s.Events, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("scan phase stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// CountByEvent returns how many times each event name was logged.
func (j *Journal) CountByEvent() (map[string]int, error) {
	rows, err := j.conn.Query(`
		SELECT event, COUNT(*)
		FROM workflow_events
		GROUP BY event`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var event string
		var n int
		if err := rows.Scan(&event, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[event] = n
	}
	return counts, rows.Err()
}
