package fiducial

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// EventKind names a lifecycle transition reported to an EventSink.
type EventKind string

const (
	EventCreated        EventKind = "created"
	EventUpdated        EventKind = "updated"
	EventPendingRemoval EventKind = "pending_removal"
	EventReactivated    EventKind = "reactivated"
	EventRemoved        EventKind = "removed"
)

// Event describes one lifecycle transition of a marker.
type Event struct {
	Kind        EventKind
	MarkerID    MarkerID
	FrameIndex  uint64
	Timestamp   time.Time
	Centroid    r2.Vec
	Area        float64
	Orientation int
}

// EventSink receives lifecycle events in the order they happened. Events
// are delivered from the goroutine calling Tracker.Update once the frame has
// been applied and the tracker lock released, so a sink may read the
// Tracker.
type EventSink interface {
	RecordEvent(Event)
}

// BatchEventSink is an EventSink that takes a whole frame's events at once.
// The tracker prefers RecordEvents when a sink implements it.
type BatchEventSink interface {
	EventSink
	RecordEvents([]Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// RecordEvent calls f(e).
func (f EventSinkFunc) RecordEvent(e Event) { f(e) }

func newEvent(kind EventKind, m *Marker, frame uint64, now time.Time) Event {
	return Event{
		Kind:        kind,
		MarkerID:    m.id,
		FrameIndex:  frame,
		Timestamp:   now,
		Centroid:    m.quad.Centroid,
		Area:        m.quad.Area,
		Orientation: m.orientation,
	}
}
