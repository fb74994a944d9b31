package fiducial

import (
	"image"
	"math"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/geometry"
	"gonum.org/v1/gonum/spatial/r2"
)

// MarkerID identifies a tracked marker.
type MarkerID uint32

// Unassigned is the sentinel id of a marker that has not been given an
// identifier yet.
const Unassigned MarkerID = math.MaxUint32

// MarkerState is the lifecycle state of a tracked marker.
type MarkerState string

const (
	StateActive         MarkerState = "active"          // Matched, removal timer clear
	StatePendingRemoval MarkerState = "pending_removal" // Unmatched, grace period running
	StateRemovable      MarkerState = "removable"       // Grace period expired, caller evicts
)

// Quad is the measured geometry of a marker-like quadrilateral.
// Corners a, b, c, d are in the winding order enforced by the ingest
// package: interior points lie left of every directed edge.
type Quad struct {
	Centroid r2.Vec
	Corners  [4]image.Point
	Area     float64
}

// Candidate is a single frame's raw detection of a marker.
type Candidate struct {
	Quad
	Orientation int
}

// Pose carries angles produced by a downstream pose estimator. The tracker
// stores it but never reads it.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Marker is a persistent tracking record carried across frames.
// Marker performs no locking; it is owned by a single Tracker.
type Marker struct {
	id          MarkerID
	quad        Quad
	orientation int
	pose        Pose

	updated bool

	removalPending bool
	removalStart   time.Time
}

// NewMarker returns a marker with zero geometry and no identifier.
func NewMarker() *Marker {
	return &Marker{id: Unassigned}
}

// NewMarkerFromCandidate builds a marker from a candidate. The new marker
// starts with its updated flag set and no removal timer.
func NewMarkerFromCandidate(id MarkerID, c Candidate) *Marker {
	m := &Marker{id: id}
	m.Update(c)
	return m
}

// Update overwrites the marker geometry and orientation from c and flags
// the marker as updated.
func (m *Marker) Update(c Candidate) {
	m.UpdateFields(c.Centroid, c.Corners, c.Area, c.Orientation)
}

// UpdateFields is the field-wise form of Update. The area is stored as an
// absolute value.
func (m *Marker) UpdateFields(centroid r2.Vec, corners [4]image.Point, area float64, orientation int) {
	m.quad.Centroid = centroid
	m.quad.Corners = corners
	m.quad.Area = math.Abs(area)
	m.orientation = orientation
	m.updated = true
}

// Clear resets geometry, orientation and identifier while keeping the
// storage slot. The marker is flagged as updated.
func (m *Marker) Clear() {
	m.quad = Quad{}
	m.orientation = 0
	m.id = Unassigned
	m.updated = true
}

// ConsumeUpdatedFlag reports whether the marker was updated since the last
// call, clearing the flag. Two calls with no Update in between return true
// then false.
func (m *Marker) ConsumeUpdatedFlag() bool {
	if m.updated {
		m.updated = false
		return true
	}
	return false
}

// Contains reports whether c is a smaller quad whose centroid lies inside
// or on the boundary of this marker. Area magnitudes are compared.
func (m *Marker) Contains(c Candidate) bool {
	if math.Abs(c.Area) >= m.quad.Area {
		return false
	}
	for i := range m.quad.Corners {
		a := m.quad.Corners[i]
		b := m.quad.Corners[(i+1)%len(m.quad.Corners)]
		if geometry.IntIsLeftOfSegment(a, b, c.Centroid) < 0 {
			return false
		}
	}
	return true
}

// CanMatch reports whether c is within the area and distance tolerances of
// this marker and strictly closer than *runningMin. On success *runningMin
// is lowered to the new distance, so sharing one accumulator across a sweep
// leaves only the closest qualifying pair reporting true last.
func (m *Marker) CanMatch(c Candidate, runningMin *float64, cfg TrackerConfig) bool {
	if math.Abs(math.Abs(c.Area)-m.quad.Area) > cfg.AreaTolerance {
		return false
	}
	d := geometry.Distance(c.Centroid, m.quad.Centroid)
	if d <= cfg.DistanceTolerance && d < *runningMin {
		*runningMin = d
		return true
	}
	return false
}

// MarkRemovalStart records now as the start of the unmatched streak.
// A later call overwrites the timestamp, restarting the grace window; the
// Tracker only arms markers that are not already pending.
func (m *Marker) MarkRemovalStart(now time.Time) {
	m.removalPending = true
	m.removalStart = now
}

// ClearRemoval returns the marker to the active state.
func (m *Marker) ClearRemoval() {
	m.removalPending = false
	m.removalStart = time.Time{}
}

// IsPendingRemoval reports whether the removal timer is running.
func (m *Marker) IsPendingRemoval() bool {
	return m.removalPending
}

// RemovalStart returns the start of the unmatched streak and whether the
// timer is set.
func (m *Marker) RemovalStart() (time.Time, bool) {
	return m.removalStart, m.removalPending
}

// CanBeRemoved reports whether the removal timer is set and more than grace
// has elapsed since it was armed. Exactly grace is not enough.
func (m *Marker) CanBeRemoved(now time.Time, grace time.Duration) bool {
	return m.removalPending && now.Sub(m.removalStart) > grace
}

// State derives the lifecycle state at now.
func (m *Marker) State(now time.Time, grace time.Duration) MarkerState {
	switch {
	case m.CanBeRemoved(now, grace):
		return StateRemovable
	case m.removalPending:
		return StatePendingRemoval
	default:
		return StateActive
	}
}

// ID returns the marker identifier, or Unassigned.
func (m *Marker) ID() MarkerID { return m.id }

// SetID attaches an externally issued identifier.
func (m *Marker) SetID(id MarkerID) { m.id = id }

// Quad returns the last matched geometry.
func (m *Marker) Quad() Quad { return m.quad }

// Centroid returns the last matched centroid in pixels.
func (m *Marker) Centroid() r2.Vec { return m.quad.Centroid }

// Corners returns the last matched corners in winding order.
func (m *Marker) Corners() [4]image.Point { return m.quad.Corners }

// Area returns the last matched area magnitude in pixels².
func (m *Marker) Area() float64 { return m.quad.Area }

// Orientation returns the detector's orientation tag.
func (m *Marker) Orientation() int { return m.orientation }

// SetOrientation replaces the orientation tag without touching geometry.
func (m *Marker) SetOrientation(o int) { m.orientation = o }

// Pose returns the opaque pose payload attached by a pose estimator.
func (m *Marker) Pose() Pose { return m.pose }

// SetPose attaches pose angles. The tracker never reads them.
func (m *Marker) SetPose(p Pose) { m.pose = p }

// markerView wraps a candidate as an unidentified marker so candidates can
// be tested against each other with Contains.
func markerView(c Candidate) *Marker {
	return &Marker{
		id:   Unassigned,
		quad: Quad{Centroid: c.Centroid, Corners: c.Corners, Area: math.Abs(c.Area)},
	}
}

// MarkerSnapshot is an immutable copy of a marker handed to consumers
// outside the frame-processing goroutine.
type MarkerSnapshot struct {
	ID           MarkerID    `json:"id"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Corners      [4][2]int   `json:"corners"`
	Area         float64     `json:"area"`
	Orientation  int         `json:"orientation"`
	Pose         Pose        `json:"pose"`
	State        MarkerState `json:"state"`
	RemovalStart *time.Time  `json:"removal_start,omitempty"`
}

// Snapshot copies the marker's outbound state. It does not touch the
// updated flag.
func (m *Marker) Snapshot(now time.Time, grace time.Duration) MarkerSnapshot {
	s := MarkerSnapshot{
		ID:          m.id,
		X:           m.quad.Centroid.X,
		Y:           m.quad.Centroid.Y,
		Area:        m.quad.Area,
		Orientation: m.orientation,
		Pose:        m.pose,
		State:       m.State(now, grace),
	}
	for i, p := range m.quad.Corners {
		s.Corners[i] = [2]int{p.X, p.Y}
	}
	if m.removalPending {
		start := m.removalStart
		s.RemovalStart = &start
	}
	return s
}
