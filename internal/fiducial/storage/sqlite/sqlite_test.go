package sqlite

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/db"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

var _ fiducial.BatchEventSink = (*EventStore)(nil)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func candidate(x, y, area float64) fiducial.Candidate {
	var c fiducial.Candidate
	c.Centroid = r2.Vec{X: x, Y: y}
	c.Area = area
	return c
}

func TestSessionStore_Lifecycle(t *testing.T) {
	database := setupTestDB(t)
	store := NewSessionStore(database.DB)
	t0 := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return t0 }

	sess, err := store.Start("bench")
	require.NoError(t, err)
	_, err = uuid.Parse(sess.SessionID)
	require.NoError(t, err)

	got, err := store.Get(sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "bench", got.Label)
	assert.Equal(t, t0, got.StartedAt)
	assert.Nil(t, got.EndedAt)

	store.now = func() time.Time { return t0.Add(time.Minute) }
	require.NoError(t, store.End(sess.SessionID))

	got, err = store.Get(sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, t0.Add(time.Minute), *got.EndedAt)
}

func TestSessionStore_NotFound(t *testing.T) {
	store := NewSessionStore(setupTestDB(t).DB)

	_, err := store.Get("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	err = store.End("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSessionStore_List(t *testing.T) {
	store := NewSessionStore(setupTestDB(t).DB)
	t0 := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return t0 }
	first, err := store.Start("")
	require.NoError(t, err)
	store.now = func() time.Time { return t0.Add(time.Hour) }
	second, err := store.Start("later")
	require.NoError(t, err)

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.SessionID, sessions[0].SessionID)
	assert.Equal(t, first.SessionID, sessions[1].SessionID)
	assert.Empty(t, sessions[1].Label)
}

func TestEventStore_InsertAndList(t *testing.T) {
	database := setupTestDB(t)
	sess, err := NewSessionStore(database.DB).Start("insert")
	require.NoError(t, err)
	store := NewEventStore(database.DB, sess.SessionID)

	ts := time.Date(2026, 4, 2, 9, 0, 0, 500, time.UTC)
	require.NoError(t, store.Insert(fiducial.Event{
		Kind:        fiducial.EventCreated,
		MarkerID:    fiducial.Unassigned - 1,
		FrameIndex:  3,
		Timestamp:   ts,
		Centroid:    r2.Vec{X: 1.5, Y: -2},
		Area:        250,
		Orientation: 2,
	}))

	events, err := store.ListBySession(sess.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	want := &MarkerEvent{
		EventID:     events[0].EventID,
		SessionID:   sess.SessionID,
		FrameIndex:  3,
		Timestamp:   ts,
		MarkerID:    fiducial.Unassigned - 1,
		Kind:        fiducial.EventCreated,
		X:           1.5,
		Y:           -2,
		Area:        250,
		Orientation: 2,
	}
	if diff := cmp.Diff(want, events[0]); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(1), store.Written())
}

func TestEventStore_UnknownSessionRejected(t *testing.T) {
	database := setupTestDB(t)
	store := NewEventStore(database.DB, "no-such-session")

	store.RecordEvent(fiducial.Event{Kind: fiducial.EventCreated, Timestamp: time.Now()})
	require.Error(t, store.Err(), "foreign key on session_id")
	assert.Zero(t, store.Written())
}

func TestEventStore_InsertBatch(t *testing.T) {
	database := setupTestDB(t)
	sess, err := NewSessionStore(database.DB).Start("batch")
	require.NoError(t, err)
	store := NewEventStore(database.DB, sess.SessionID)

	ts := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	store.RecordEvents([]fiducial.Event{
		{Kind: fiducial.EventCreated, MarkerID: 4, FrameIndex: 1, Timestamp: ts},
		{Kind: fiducial.EventPendingRemoval, MarkerID: 2, FrameIndex: 1, Timestamp: ts},
		{Kind: fiducial.EventRemoved, MarkerID: 3, FrameIndex: 1, Timestamp: ts},
	})
	require.NoError(t, store.Err())
	assert.Equal(t, uint64(3), store.Written())

	events, err := store.ListBySession(sess.SessionID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, fiducial.MarkerID(4), events[0].MarkerID)
	assert.Equal(t, fiducial.MarkerID(2), events[1].MarkerID)
	assert.Equal(t, fiducial.MarkerID(3), events[2].MarkerID)

	assert.NoError(t, store.InsertBatch(nil))
}

func TestEventStore_InsertBatchIsAtomic(t *testing.T) {
	database := setupTestDB(t)
	sess, err := NewSessionStore(database.DB).Start("atomic")
	require.NoError(t, err)
	store := NewEventStore(database.DB, sess.SessionID)

	// SQLite binds NaN as NULL, which the centroid NOT NULL constraint rejects.
	err = store.InsertBatch([]fiducial.Event{
		{Kind: fiducial.EventCreated, MarkerID: 1, Timestamp: time.Now()},
		{Kind: fiducial.EventCreated, MarkerID: 2, Timestamp: time.Now(), Centroid: r2.Vec{X: math.NaN()}},
	})
	require.Error(t, err)

	events, err := store.ListBySession(sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Zero(t, store.Written())
}

func TestEventStore_TrackerSession(t *testing.T) {
	database := setupTestDB(t)
	sess, err := NewSessionStore(database.DB).Start("replay")
	require.NoError(t, err)
	store := NewEventStore(database.DB, sess.SessionID)

	tracker := fiducial.NewTracker(fiducial.TrackerConfig{
		DistanceTolerance:  30,
		AreaTolerance:      1000,
		RemovalGracePeriod: 500 * time.Millisecond,
	}, nil)
	tracker.Events = store

	t0 := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	tracker.Update([]fiducial.Candidate{candidate(0, 0, 100), candidate(100, 0, 100)}, t0)
	tracker.Update([]fiducial.Candidate{candidate(2, 1, 100), candidate(104, 0, 100)}, t0.Add(33*time.Millisecond))
	tracker.Update([]fiducial.Candidate{candidate(5, 2, 100)}, t0.Add(66*time.Millisecond))
	tracker.Update(nil, t0.Add(700*time.Millisecond))
	require.NoError(t, store.Err())

	all, err := store.ListBySession(sess.SessionID)
	require.NoError(t, err)
	assert.Len(t, all, 2+2+2+2)

	m1, err := store.ListByMarker(sess.SessionID, 1)
	require.NoError(t, err)
	var kinds []fiducial.EventKind
	for _, e := range m1 {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []fiducial.EventKind{
		fiducial.EventCreated,
		fiducial.EventUpdated,
		fiducial.EventPendingRemoval,
		fiducial.EventRemoved,
	}, kinds)

	trajectories, err := store.Trajectories(sess.SessionID)
	require.NoError(t, err)
	require.Len(t, trajectories, 2)
	assert.Equal(t, fiducial.MarkerID(0), trajectories[0].MarkerID)
	assert.Equal(t, []r2.Vec{{X: 0, Y: 0}, {X: 2, Y: 1}, {X: 5, Y: 2}}, trajectories[0].Points)
	assert.Equal(t, []r2.Vec{{X: 100, Y: 0}, {X: 104, Y: 0}}, trajectories[1].Points)
	assert.Len(t, trajectories[1].Times, 2)
}
