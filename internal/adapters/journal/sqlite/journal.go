// Package sqlite persists the controller's emitted events as an append-only
// audit trail. Rows hold status metadata only; there is no column that could
// ever carry a captured value.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/agentdesk/paycapture/internal/core/domain"
	"github.com/agentdesk/paycapture/internal/core/ports"
)

// Journal implements ports.EventJournal on a SQLite database.
type Journal struct {
	db *sql.DB
}

var _ ports.EventJournal = (*Journal)(nil)

// New opens (creating if needed) the journal database at path. Use
// ":memory:" for an ephemeral journal.
func New(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: writes stay serialized and an in-memory database is
	// not silently duplicated per pooled connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	j := &Journal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	_, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS capture_events (
id INTEGER PRIMARY KEY AUTOINCREMENT,
type TEXT NOT NULL,
call_id TEXT NOT NULL DEFAULT '',
session_id TEXT NOT NULL DEFAULT '',
field TEXT NOT NULL DEFAULT '',
error TEXT NOT NULL DEFAULT '',
snapshot TEXT,
created_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(`CREATE INDEX IF NOT EXISTS idx_capture_events_call ON capture_events(call_id)`)
	return err
}

// Append writes one event.
func (j *Journal) Append(ctx context.Context, event domain.Event) error {
	var snapshot any
	if event.Snapshot != nil {
		encoded, err := json.Marshal(event.Snapshot)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		snapshot = string(encoded)
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO capture_events (type, call_id, session_id, field, error, snapshot, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(event.Type), event.CallID, event.SessionID, string(event.Field),
		event.Error, snapshot, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListByCall returns the events recorded for a call, oldest first.
func (j *Journal) ListByCall(ctx context.Context, callID string) ([]domain.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT type, call_id, session_id, field, error, snapshot, created_at
FROM capture_events WHERE call_id = ? ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			event    domain.Event
			kind     string
			field    string
			snapshot sql.NullString
		)
		if err := rows.Scan(&kind, &event.CallID, &event.SessionID, &field,
			&event.Error, &snapshot, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = domain.EventType(kind)
		event.Field = domain.FieldKind(field)
		if snapshot.Valid && snapshot.String != "" {
			var snap domain.ProgressSnapshot
			if err := json.Unmarshal([]byte(snapshot.String), &snap); err != nil {
				return nil, fmt.Errorf("failed to decode snapshot: %w", err)
			}
			event.Snapshot = &snap
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
