// Package history persists classified button events in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sweeney/button-sensor/internal/logic"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_ms   INTEGER NOT NULL,
	button  INTEGER NOT NULL,
	name    TEXT    NOT NULL,
	kind    TEXT    NOT NULL,
	boot_id TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_ts ON events(ts_ms);
`

// Record is one stored event.
type Record struct {
	ID        int64
	Timestamp time.Time
	Button    int
	Name      string
	Kind      string
	BootID    string
}

// Store appends events and keeps at most Keep rows.
type Store struct {
	db     *sql.DB
	keep   int
	bootID string
}

// Open opens (or creates) the database at path. ":memory:" is accepted.
func Open(path string, keep int, bootID string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db, keep: keep, bootID: bootID}, nil
}

// Append stores one event and prunes rows beyond the retention limit.
func (s *Store) Append(ctx context.Context, ts time.Time, ev logic.Event, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts_ms, button, name, kind, boot_id) VALUES (?, ?, ?, ?, ?)`,
		ts.UnixMilli(), ev.Button, name, ev.Kind.String(), s.bootID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if s.keep > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM events WHERE id <= (SELECT MAX(id) FROM events) - ?`, s.keep); err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts_ms, button, name, kind, boot_id FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.ID, &ms, &r.Button, &r.Name, &r.Kind, &r.BootID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
