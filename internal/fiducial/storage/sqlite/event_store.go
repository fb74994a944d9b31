package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r2"
)

// MarkerEvent is a stored lifecycle event.
type MarkerEvent struct {
	EventID     int64              `json:"event_id"`
	SessionID   string             `json:"session_id"`
	FrameIndex  uint64             `json:"frame_index"`
	Timestamp   time.Time          `json:"timestamp"`
	MarkerID    fiducial.MarkerID  `json:"marker_id"`
	Kind        fiducial.EventKind `json:"kind"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
	Area        float64            `json:"area"`
	Orientation int                `json:"orientation"`
}

// Trajectory is the centroid path of one marker within a session.
type Trajectory struct {
	MarkerID fiducial.MarkerID
	Times    []time.Time
	Points   []r2.Vec
}

// EventStore records tracker events for one session. It implements
// fiducial.BatchEventSink, writing each frame's events in one transaction.
type EventStore struct {
	db        *sql.DB
	sessionID string

	mu       sync.Mutex
	firstErr error
	written  uint64
}

// NewEventStore creates an EventStore writing into sessionID.
func NewEventStore(db *sql.DB, sessionID string) *EventStore {
	return &EventStore{db: db, sessionID: sessionID}
}

// SessionID returns the session events are written to.
func (s *EventStore) SessionID() string {
	return s.sessionID
}

const insertEventSQL = `
		INSERT INTO marker_events (
			session_id, frame_index, ts_unix_nanos, marker_id, kind,
			centroid_x, centroid_y, area, orientation
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// RecordEvent inserts e. Failures are logged and the first is kept for Err,
// so a broken log never stalls frame processing.
func (s *EventStore) RecordEvent(e fiducial.Event) {
	s.keepErr(s.Insert(e))
}

// RecordEvents inserts one frame's events in a single transaction. On
// failure none of them are stored.
func (s *EventStore) RecordEvents(events []fiducial.Event) {
	s.keepErr(s.InsertBatch(events))
}

func (s *EventStore) keepErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
		monitoring.Logf("[events] session %s: %v", s.sessionID, err)
	}
}

// Insert writes a single event.
func (s *EventStore) Insert(e fiducial.Event) error {
	if err := s.insert(s.db, e); err != nil {
		return err
	}
	s.mu.Lock()
	s.written++
	s.mu.Unlock()
	return nil
}

// InsertBatch writes events atomically.
func (s *EventStore) InsertBatch(events []fiducial.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin event batch: %w", err)
	}
	for _, e := range events {
		if err := s.insert(tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event batch: %w", err)
	}
	s.mu.Lock()
	s.written += uint64(len(events))
	s.mu.Unlock()
	return nil
}

func (s *EventStore) insert(db execer, e fiducial.Event) error {
	_, err := db.Exec(insertEventSQL,
		s.sessionID,
		int64(e.FrameIndex),
		e.Timestamp.UnixNano(),
		int64(e.MarkerID),
		string(e.Kind),
		e.Centroid.X,
		e.Centroid.Y,
		e.Area,
		e.Orientation,
	)
	if err != nil {
		return fmt.Errorf("insert marker event: %w", err)
	}
	return nil
}

// Err returns the first write error seen by RecordEvent or RecordEvents.
func (s *EventStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Written returns the number of events inserted.
func (s *EventStore) Written() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

const eventColumns = `event_id, session_id, frame_index, ts_unix_nanos, marker_id, kind,
		       centroid_x, centroid_y, area, orientation`

// ListBySession returns every event of a session in write order.
func (s *EventStore) ListBySession(sessionID string) ([]*MarkerEvent, error) {
	return s.query(`SELECT `+eventColumns+`
		FROM marker_events
		WHERE session_id = ?
		ORDER BY event_id`, sessionID)
}

// ListByMarker returns one marker's events within a session.
func (s *EventStore) ListByMarker(sessionID string, id fiducial.MarkerID) ([]*MarkerEvent, error) {
	return s.query(`SELECT `+eventColumns+`
		FROM marker_events
		WHERE session_id = ? AND marker_id = ?
		ORDER BY event_id`, sessionID, int64(id))
}

// Trajectories groups the positional events of a session by marker, in
// ascending marker id order.
func (s *EventStore) Trajectories(sessionID string) ([]Trajectory, error) {
	events, err := s.query(`SELECT `+eventColumns+`
		FROM marker_events
		WHERE session_id = ? AND kind IN (?, ?)
		ORDER BY marker_id, ts_unix_nanos, event_id`,
		sessionID, string(fiducial.EventCreated), string(fiducial.EventUpdated))
	if err != nil {
		return nil, err
	}

	var out []Trajectory
	for _, e := range events {
		if len(out) == 0 || out[len(out)-1].MarkerID != e.MarkerID {
			out = append(out, Trajectory{MarkerID: e.MarkerID})
		}
		tr := &out[len(out)-1]
		tr.Times = append(tr.Times, e.Timestamp)
		tr.Points = append(tr.Points, r2.Vec{X: e.X, Y: e.Y})
	}
	return out, nil
}

func (s *EventStore) query(q string, args ...interface{}) ([]*MarkerEvent, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list marker events: %w", err)
	}
	defer rows.Close()

	var events []*MarkerEvent
	for rows.Next() {
		e := &MarkerEvent{}
		var frame, ts, markerID int64
		var kind string
		if err := rows.Scan(
			&e.EventID, &e.SessionID, &frame, &ts, &markerID, &kind,
			&e.X, &e.Y, &e.Area, &e.Orientation,
		); err != nil {
			return nil, fmt.Errorf("scan marker event: %w", err)
		}
		e.FrameIndex = uint64(frame)
		e.Timestamp = time.Unix(0, ts).UTC()
		e.MarkerID = fiducial.MarkerID(markerID)
		e.Kind = fiducial.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
