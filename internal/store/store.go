// Package store persists audits, their reports and the live engine status
// of the running audit.
//
// The daemon and the CLI share one SQLite file (see package database): the
// CLI schedules and inspects audits, the daemon's scheduler picks them up.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crackomatic/crackomatic/internal/database"
	"github.com/crackomatic/crackomatic/internal/domain"
)

// timeLayout has a fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditStore defines the persistence interface for audits.
type AuditStore interface {
	// CreateAudit inserts a new audit. An empty ID is filled in.
	CreateAudit(ctx context.Context, a *domain.Audit) error

	// SaveAuditState writes the mutable fields of an audit: state, start,
	// end and password.
	SaveAuditState(ctx context.Context, a *domain.Audit) error

	// GetAudit returns one audit with its report. domain.ErrNotFound if
	// missing.
	GetAudit(ctx context.Context, id string) (*domain.Audit, error)

	// LoadDueAudits returns scheduled audits starting at or before now,
	// earliest first.
	LoadDueAudits(ctx context.Context, now time.Time) ([]domain.Audit, error)

	// ListScheduled returns all scheduled audits, earliest first.
	ListScheduled(ctx context.Context) ([]domain.Audit, error)

	// ListPast returns audits in a terminal state, most recently ended
	// first. limit <= 0 means no limit.
	ListPast(ctx context.Context, limit int) ([]domain.Audit, error)

	// LastFinished returns the most recent successful audit with its
	// report, or nil.
	LastFinished(ctx context.Context) (*domain.Audit, error)

	// ActiveAudit returns the audit currently holding the cracking host,
	// or nil.
	ActiveAudit(ctx context.Context) (*domain.Audit, error)

	// DeleteAudit removes an audit that is not running.
	DeleteAudit(ctx context.Context, id string) error

	SaveReport(ctx context.Context, auditID string, r *domain.Report) error

	SaveEngineStatus(ctx context.Context, s domain.StatusSnapshot) error

	// EngineStatus returns the last recorded status, or nil.
	EngineStatus(ctx context.Context) (*domain.StatusSnapshot, error)

	// FailInterrupted marks audits left in an active state by a process
	// that died as failed. It returns how many were changed.
	FailInterrupted(ctx context.Context, now time.Time) (int64, error)

	Close() error
}

// SQLiteStore implements AuditStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens the store at the default database path.
func Open() (*SQLiteStore, error) {
	path, err := database.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return OpenAt(path)
}

// OpenAt creates or opens the store at path.
func OpenAt(path string) (*SQLiteStore, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audits (
			id              TEXT    PRIMARY KEY,
			domain          TEXT    NOT NULL,
			user_name       TEXT    NOT NULL,
			password        TEXT    NOT NULL DEFAULT '',
			dc_ip           TEXT    NOT NULL DEFAULT '',
			ldap_url        TEXT    NOT NULL DEFAULT '',
			ca_file         TEXT    NOT NULL DEFAULT '',
			email_field     TEXT    NOT NULL DEFAULT 'mail',
			user_filter     TEXT    NOT NULL DEFAULT '',
			admin_filter    TEXT    NOT NULL DEFAULT '',
			subject         TEXT    NOT NULL DEFAULT '',
			message         TEXT    NOT NULL DEFAULT '',
			include_cracked INTEGER NOT NULL DEFAULT 0,
			started_at      TEXT    NOT NULL DEFAULT '',
			ended_at        TEXT    NOT NULL DEFAULT '',
			state           INTEGER NOT NULL,
			frequency       INTEGER NOT NULL,
			created_at      TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audits_state_start ON audits(state, started_at);
		CREATE INDEX IF NOT EXISTS idx_audits_ended ON audits(ended_at);

		CREATE TABLE IF NOT EXISTS reports (
			audit_id   TEXT PRIMARY KEY REFERENCES audits(id) ON DELETE CASCADE,
			report     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS engine_status (
			id          INTEGER PRIMARY KEY CHECK (id = 1),
			audit_id    TEXT    NOT NULL,
			state       INTEGER NOT NULL,
			speed       REAL    NOT NULL DEFAULT 0,
			percent     REAL    NOT NULL DEFAULT 0,
			guesses     INTEGER NOT NULL DEFAULT 0,
			eta         TEXT    NOT NULL DEFAULT '',
			captured_at TEXT    NOT NULL
		);
	`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migration failed: %w", err)
	}
	return nil
}

const auditColumns = `a.id, a.domain, a.user_name, a.password, a.dc_ip, a.ldap_url, a.ca_file,
	a.email_field, a.user_filter, a.admin_filter, a.subject, a.message,
	a.include_cracked, a.started_at, a.ended_at, a.state, a.frequency, r.report`

const auditFrom = ` FROM audits a LEFT JOIN reports r ON r.audit_id = a.id `

// CreateAudit inserts a new audit.
func (s *SQLiteStore) CreateAudit(ctx context.Context, a *domain.Audit) error {
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	if a.State == 0 {
		a.State = domain.StateScheduled
	}
	if a.Frequency == 0 {
		a.Frequency = domain.FrequencyJustOnce
	}
	if a.EmailField == "" {
		a.EmailField = domain.DefaultEmailField
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audits (id, domain, user_name, password, dc_ip, ldap_url, ca_file, email_field,
		                    user_filter, admin_filter, subject, message, include_cracked,
		                    started_at, ended_at, state, frequency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Domain, a.User, a.Password, a.DCAddress, a.LDAPURL, a.CAFile, a.EmailField,
		a.UserFilter, a.AdminFilter, a.Subject, a.Message, a.IncludeCracked,
		formatTime(a.Start), formatTime(a.End), int(a.State), int(a.Frequency),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: insert failed: %w", err)
	}
	if a.Report != nil {
		return s.SaveReport(ctx, a.ID, a.Report)
	}
	return nil
}

// SaveAuditState writes state, start, end and password.
func (s *SQLiteStore) SaveAuditState(ctx context.Context, a *domain.Audit) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE audits SET state=?, started_at=?, ended_at=?, password=? WHERE id=?`,
		int(a.State), formatTime(a.Start), formatTime(a.End), a.Password, a.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("store: audit %s: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

// GetAudit returns one audit.
func (s *SQLiteStore) GetAudit(ctx context.Context, id string) (*domain.Audit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+auditColumns+auditFrom+`WHERE a.id = ?`, id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: audit %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	return a, nil
}

// LoadDueAudits returns scheduled audits starting at or before now.
func (s *SQLiteStore) LoadDueAudits(ctx context.Context, now time.Time) ([]domain.Audit, error) {
	return s.queryAudits(ctx, `WHERE a.state = ? AND a.started_at <= ? ORDER BY a.started_at ASC`,
		int(domain.StateScheduled), formatTime(now))
}

// ListScheduled returns all scheduled audits.
func (s *SQLiteStore) ListScheduled(ctx context.Context) ([]domain.Audit, error) {
	return s.queryAudits(ctx, `WHERE a.state = ? ORDER BY a.started_at ASC`, int(domain.StateScheduled))
}

// ListPast returns terminated audits.
func (s *SQLiteStore) ListPast(ctx context.Context, limit int) ([]domain.Audit, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryAudits(ctx, `WHERE a.state IN (?, ?, ?) ORDER BY a.ended_at DESC LIMIT ?`,
		int(domain.StateAborted), int(domain.StateFailed), int(domain.StateFinished), limit)
}

// LastFinished returns the most recent finished audit.
func (s *SQLiteStore) LastFinished(ctx context.Context) (*domain.Audit, error) {
	audits, err := s.queryAudits(ctx, `WHERE a.state = ? ORDER BY a.ended_at DESC LIMIT 1`, int(domain.StateFinished))
	if err != nil || len(audits) == 0 {
		return nil, err
	}
	return &audits[0], nil
}

// ActiveAudit returns the most recently started audit in an active state.
func (s *SQLiteStore) ActiveAudit(ctx context.Context) (*domain.Audit, error) {
	audits, err := s.queryAudits(ctx, `WHERE a.state BETWEEN ? AND ? ORDER BY a.started_at DESC LIMIT 1`,
		int(domain.StateReplicating), int(domain.StateSendingEmails))
	if err != nil || len(audits) == 0 {
		return nil, err
	}
	return &audits[0], nil
}

// DeleteAudit removes an audit and its report.
func (s *SQLiteStore) DeleteAudit(ctx context.Context, id string) error {
	a, err := s.GetAudit(ctx, id)
	if err != nil {
		return err
	}
	if a.State.Active() {
		return fmt.Errorf("store: audit %s is %s and cannot be deleted", id, a.State)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audits WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete failed: %w", err)
	}
	return nil
}

// SaveReport stores the report of an audit, replacing an earlier one.
func (s *SQLiteStore) SaveReport(ctx context.Context, auditID string, r *domain.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encoding report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (audit_id, report, created_at) VALUES (?, ?, ?)
		ON CONFLICT(audit_id) DO UPDATE SET report = excluded.report, created_at = excluded.created_at`,
		auditID, string(data), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: saving report failed: %w", err)
	}
	return nil
}

// SaveEngineStatus replaces the recorded engine status.
func (s *SQLiteStore) SaveEngineStatus(ctx context.Context, st domain.StatusSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO engine_status (id, audit_id, state, speed, percent, guesses, eta, captured_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET audit_id = excluded.audit_id, state = excluded.state,
			speed = excluded.speed, percent = excluded.percent, guesses = excluded.guesses,
			eta = excluded.eta, captured_at = excluded.captured_at`,
		st.AuditID, int(st.State), st.Progress.Speed, st.Progress.Percent, st.Progress.Guesses,
		formatTime(st.Progress.ETA), formatTime(st.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("store: saving engine status failed: %w", err)
	}
	return nil
}

// EngineStatus returns the recorded engine status.
func (s *SQLiteStore) EngineStatus(ctx context.Context) (*domain.StatusSnapshot, error) {
	var (
		st              domain.StatusSnapshot
		state           int
		eta, capturedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT audit_id, state, speed, percent, guesses, eta, captured_at
		FROM engine_status WHERE id = 1`).Scan(
		&st.AuditID, &state, &st.Progress.Speed, &st.Progress.Percent, &st.Progress.Guesses, &eta, &capturedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	st.State = domain.State(state)
	st.Progress.ETA = parseTime(eta)
	st.CapturedAt = parseTime(capturedAt)
	return &st, nil
}

// FailInterrupted fails audits stuck in an active state.
func (s *SQLiteStore) FailInterrupted(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE audits SET state = ?, ended_at = ? WHERE state BETWEEN ? AND ?`,
		int(domain.StateFailed), formatTime(now), int(domain.StateReplicating), int(domain.StateSendingEmails),
	)
	if err != nil {
		return 0, fmt.Errorf("store: update failed: %w", err)
	}
	return result.RowsAffected()
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryAudits(ctx context.Context, where string, args ...any) ([]domain.Audit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+auditColumns+auditFrom+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query failed: %w", err)
	}
	defer rows.Close()

	var audits []domain.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan failed: %w", err)
		}
		audits = append(audits, *a)
	}
	return audits, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(row scanner) (*domain.Audit, error) {
	var (
		a                domain.Audit
		start, end       string
		state, frequency int
		report           sql.NullString
	)
	err := row.Scan(
		&a.ID, &a.Domain, &a.User, &a.Password, &a.DCAddress, &a.LDAPURL, &a.CAFile,
		&a.EmailField, &a.UserFilter, &a.AdminFilter, &a.Subject, &a.Message,
		&a.IncludeCracked, &start, &end, &state, &frequency, &report,
	)
	if err != nil {
		return nil, err
	}
	a.Start = parseTime(start)
	a.End = parseTime(end)
	a.State = domain.State(state)
	a.Frequency = domain.Frequency(frequency)
	if report.Valid && strings.TrimSpace(report.String) != "" {
		var r domain.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("decoding report of %s: %w", a.ID, err)
		}
		a.Report = &r
	}
	return &a, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}
