// Package eventlog keeps application log records in the database so they
// can be reviewed with "crackomatic events" after the fact.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/database"
)

// Repository defines the persistence interface for events.
type Repository interface {
	Save(ctx context.Context, event *Event) error
	List(ctx context.Context, limit int) ([]Event, error)
	ListByAudit(ctx context.Context, auditID string, limit int) ([]Event, error)
	Count(ctx context.Context) (int64, error)
	Prune(ctx context.Context, f PruneFilter) (int64, error)
	CountPrunable(ctx context.Context, f PruneFilter) (int64, error)
	Close() error
}

// PruneFilter selects the events Prune deletes. Zero fields do not
// restrict the selection, but at least one must be set.
type PruneFilter struct {
	// Before keeps events logged at or after it.
	Before time.Time

	AuditID string

	// Levels restricts pruning to events with one of these levels
	// ("DEBUG", "INFO", ...).
	Levels []string
}

func (f PruneFilter) where() (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	if !f.Before.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, formatTime(f.Before))
	}
	if f.AuditID != "" {
		conds = append(conds, "audit_id = ?")
		args = append(args, f.AuditID)
	}
	if len(f.Levels) > 0 {
		conds = append(conds, "level IN (?"+strings.Repeat(", ?", len(f.Levels)-1)+")")
		for _, l := range f.Levels {
			args = append(args, l)
		}
	}
	if len(conds) == 0 {
		return "", nil, errors.New("eventlog: prune needs a time, audit or level filter")
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// SQLiteRepository implements Repository backed by a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// Open creates or opens the event repository at the default path.
func Open() (*SQLiteRepository, error) {
	path, err := database.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("eventlog: %w", err)
	}
	return OpenAt(path)
}

// OpenAt creates or opens a SQLite database at the given path.
func OpenAt(path string) (*SQLiteRepository, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: %w", err)
	}

	r := &SQLiteRepository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) migrate() error {
	const ddl = `
        CREATE TABLE IF NOT EXISTS events (
            id        INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp TEXT    NOT NULL,
            level     TEXT    NOT NULL,
            component TEXT    NOT NULL DEFAULT '',
            audit_id  TEXT    NOT NULL DEFAULT '',
            message   TEXT    NOT NULL,
            attrs     TEXT    NOT NULL DEFAULT ''
        );
        CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
        CREATE INDEX IF NOT EXISTS idx_events_audit ON events(audit_id);
    `
	if _, err := r.db.Exec(ddl); err != nil {
		return fmt.Errorf("eventlog: migration failed: %w", err)
	}
	return nil
}

// Save inserts a new event.
func (r *SQLiteRepository) Save(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	attrs := ""
	if len(event.Attrs) > 0 {
		data, err := json.Marshal(event.Attrs)
		if err != nil {
			return fmt.Errorf("eventlog: encoding attributes: %w", err)
		}
		attrs = string(data)
	}

	result, err := r.db.ExecContext(ctx, `
        INSERT INTO events (timestamp, level, component, audit_id, message, attrs)
        VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(event.Timestamp), event.Level, event.Component, event.AuditID, event.Message, attrs,
	)
	if err != nil {
		return fmt.Errorf("eventlog: insert failed: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("eventlog: failed to get last insert ID: %w", err)
	}
	event.ID = id
	return nil
}

// List returns the most recent n events, newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, timestamp, level, component, audit_id, message, attrs
        FROM events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ListByAudit returns the most recent n events of one audit.
func (r *SQLiteRepository) ListByAudit(ctx context.Context, auditID string, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, timestamp, level, component, audit_id, message, attrs
        FROM events WHERE audit_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`, auditID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query failed: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Count returns the number of stored events.
func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventlog: count failed: %w", err)
	}
	return n, nil
}

// Prune deletes the events matching f.
func (r *SQLiteRepository) Prune(ctx context.Context, f PruneFilter) (int64, error) {
	where, args, err := f.where()
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM events`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("eventlog: delete failed: %w", err)
	}
	return result.RowsAffected()
}

// CountPrunable returns how many events Prune would delete.
func (r *SQLiteRepository) CountPrunable(ctx context.Context, f PruneFilter) (int64, error) {
	where, args, err := f.where()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("eventlog: count failed: %w", err)
	}
	return n, nil
}

// Close releases database resources.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func scanRows(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event        Event
			ts, rawAttrs string
		)
		err := rows.Scan(&event.ID, &ts, &event.Level, &event.Component, &event.AuditID, &event.Message, &rawAttrs)
		if err != nil {
			return nil, fmt.Errorf("eventlog: scan failed: %w", err)
		}
		event.Timestamp, _ = time.Parse(timeLayout, ts)
		if rawAttrs != "" {
			if err := json.Unmarshal([]byte(rawAttrs), &event.Attrs); err != nil {
				return nil, fmt.Errorf("eventlog: decoding attributes of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }
