package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Sink = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite audit store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite audit store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite audit store: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			streamsid TEXT NOT NULL UNIQUE,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			streamsid TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_by_streamsid ON events(streamsid, id);`,
		`CREATE INDEX IF NOT EXISTS events_by_kind ON events(kind);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite audit store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) LogEvent(ctx context.Context, callID, kind string, data any) error {
	text, err := encodeData(data)
	if err != nil {
		return err
	}
	return s.Insert(ctx, Event{
		ID:        uuid.NewString(),
		CallID:    callID,
		Kind:      kind,
		Data:      text,
		CreatedAt: s.now(),
	})
}

// Insert writes a fully formed event. Re-inserting the same event id is a
// no-op. A start event also records the call session.
func (s *SQLiteStore) Insert(ctx context.Context, ev Event) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite audit store: db is nil")
	}
	if strings.TrimSpace(ev.Kind) == "" {
		return errors.New("sqlite audit store: empty kind")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	ms := ev.CreatedAt.UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite audit store: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if ev.Kind == KindStart {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO call_sessions(streamsid, created_at_ms) VALUES (?, ?)`,
			ev.CallID, ms,
		); err != nil {
			return errors.Wrap(err, "sqlite audit store: insert session")
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO events(event_id, streamsid, kind, data, created_at_ms) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.CallID, ev.Kind, ev.Data, ms,
	); err != nil {
		return errors.Wrap(err, "sqlite audit store: insert event")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite audit store: commit")
	}
	return nil
}

// ListEvents returns a call's events in insertion order. limit <= 0 means no
// limit.
func (s *SQLiteStore) ListEvents(ctx context.Context, callID string, limit int) ([]Event, error) {
	q := `SELECT event_id, streamsid, kind, data, created_at_ms FROM events WHERE streamsid = ? ORDER BY id ASC`
	args := []any{callID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite audit store: list events")
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var ev Event
		var ms int64
		if err := rows.Scan(&ev.ID, &ev.CallID, &ev.Kind, &ev.Data, &ms); err != nil {
			return nil, errors.Wrap(err, "sqlite audit store: scan event")
		}
		ev.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, ev)
	}
	return out, errors.Wrap(rows.Err(), "sqlite audit store: list events")
}

// ListSessions returns the most recent call sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]CallSession, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT streamsid, created_at_ms FROM call_sessions ORDER BY created_at_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite audit store: list sessions")
	}
	defer func() { _ = rows.Close() }()

	var out []CallSession
	for rows.Next() {
		var cs CallSession
		var ms int64
		if err := rows.Scan(&cs.CallID, &ms); err != nil {
			return nil, errors.Wrap(err, "sqlite audit store: scan session")
		}
		cs.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, cs)
	}
	return out, errors.Wrap(rows.Err(), "sqlite audit store: list sessions")
}
