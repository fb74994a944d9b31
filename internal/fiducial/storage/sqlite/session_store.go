package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is not in the log.
var ErrSessionNotFound = errors.New("tracking session not found")

// Session is one tracker run.
type Session struct {
	SessionID string     `json:"session_id"`
	Label     string     `json:"label,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// SessionStore provides persistence for tracking sessions.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, now: time.Now}
}

// Start opens a new session with a fresh UUID.
func (s *SessionStore) Start(label string) (*Session, error) {
	sess := &Session{
		SessionID: uuid.New().String(),
		Label:     label,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO tracking_sessions (session_id, label, started_unix_nanos) VALUES (?, ?, ?)`,
		sess.SessionID, nullString(label), sess.StartedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert tracking session: %w", err)
	}
	return sess, nil
}

// End stamps the session end time.
func (s *SessionStore) End(sessionID string) error {
	res, err := s.db.Exec(
		`UPDATE tracking_sessions SET ended_unix_nanos = ? WHERE session_id = ?`,
		s.now().UTC().UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("end tracking session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end tracking session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("end tracking session %s: %w", sessionID, ErrSessionNotFound)
	}
	return nil
}

// Get returns a session by id.
func (s *SessionStore) Get(sessionID string) (*Session, error) {
	var (
		sess    Session
		label   sql.NullString
		started int64
		ended   sql.NullInt64
	)
	err := s.db.QueryRow(
		`SELECT session_id, label, started_unix_nanos, ended_unix_nanos
		 FROM tracking_sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.SessionID, &label, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tracking session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking session: %w", err)
	}

	sess.Label = label.String
	sess.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		sess.EndedAt = &t
	}
	return &sess, nil
}

// List returns all sessions, most recent first.
func (s *SessionStore) List() ([]*Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id, label, started_unix_nanos, ended_unix_nanos
		 FROM tracking_sessions ORDER BY started_unix_nanos DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tracking sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			sess    Session
			label   sql.NullString
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&sess.SessionID, &label, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan tracking session: %w", err)
		}
		sess.Label = label.String
		sess.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			sess.EndedAt = &t
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
