// Package store persists session lifecycle records in a local sqlite
// database so operators can inspect what ran, when, and for how long.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	command    TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);
`

// Store wraps the sqlite connection. It satisfies session.Recorder.
type Store struct {
	conn *sql.DB
}

// Open creates the database file (and parent directory) if needed and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database at %q: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// SessionStarted records a newly spawned session.
func (s *Store) SessionStarted(ctx context.Context, id, command string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, command, started_at) VALUES (?, ?, ?)`,
		id, command, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: record session start: %w", err)
	}
	return nil
}

// SessionEnded stamps the session's end time.
func (s *Store) SessionEnded(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: record session end: %w", err)
	}
	return nil
}

// Record is one session's lifecycle row. EndedAt is nil while the
// session is still live (or if the process died without a clean stamp).
type Record struct {
	ID        string
	Command   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Sessions returns every recorded session, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, command, started_at, ended_at FROM sessions ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: query sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.Command, &r.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate sessions: %w", err)
	}
	return records, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
