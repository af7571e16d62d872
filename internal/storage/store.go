package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
	defaultListLimit     = 50
)

// Event kinds written by the journal.
const (
	EventCountdownStart  = "countdown_start"
	EventCountdownCancel = "countdown_cancel"
	EventSystemReset     = "system_reset"
)

// Store wraps the SQLite handle holding the presence journal.
type Store struct {
	db *sql.DB
}

// Session is one connection as it was journaled. DisconnectedAt is nil while
// the connection is still open.
type Session struct {
	Token          string     `json:"-"`
	ClientID       int        `json:"clientId"`
	ConnectedAt    time.Time  `json:"connectedAt"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// Event is a countdown or reset entry.
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Value     int       `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrSessionExists is returned when a connection token is journaled twice.
var ErrSessionExists = errors.New("session already recorded")

// NewStore opens the SQLite database at path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "livecount.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_time_format=sqlite", path, separator, defaultBusyTimeout)
}

// Migrate creates the journal tables.
func (s *Store) Migrate(ctx context.Context) (err error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			client_id INTEGER NOT NULL,
			connected_at DATETIME NOT NULL,
			disconnected_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			value INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_connected_at ON sessions(connected_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// OpenSession journals a new connection.
func (s *Store) OpenSession(ctx context.Context, token string, clientID int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(token, client_id, connected_at) VALUES(?, ?, ?)`, token, clientID, at.UTC())
	if isConstraintError(err) {
		return ErrSessionExists
	}
	return err
}

// CloseSession stamps the disconnect time. Closing an unknown or already
// closed session is not an error.
func (s *Store) CloseSession(ctx context.Context, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET disconnected_at = ? WHERE token = ? AND disconnected_at IS NULL`, at.UTC(), token)
	return err
}

// RecordEvent appends a countdown or reset event.
func (s *Store) RecordEvent(ctx context.Context, kind string, value int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events(kind, value, created_at) VALUES(?, ?, ?)`, kind, value, at.UTC())
	return err
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, client_id, connected_at, disconnected_at
		FROM sessions
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		var (
			session        Session
			disconnectedAt sql.NullTime
		)
		if err := rows.Scan(&session.Token, &session.ClientID, &session.ConnectedAt, &disconnectedAt); err != nil {
			return nil, err
		}
		if disconnectedAt.Valid {
			at := disconnectedAt.Time
			session.DisconnectedAt = &at
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, value, created_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.Kind, &event.Value, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == sqliteConstraintCode
	}
	return false
}
