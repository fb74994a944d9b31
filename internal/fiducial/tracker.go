package fiducial

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"github.com/banshee-data/fiducial-tracker/internal/timeutil"
)

// maxIDDraws bounds how many ids are drawn for one new marker before the
// candidate is rejected.
const maxIDDraws = 16

// ErrIDExhausted is returned when the IDSource keeps producing ids that are
// unassigned or already live.
var ErrIDExhausted = errors.New("fiducial: id source produced no free identifier")

// DebugCollector interface for association instrumentation.
// Allows decoupling from the debug package to avoid circular dependencies.
type DebugCollector interface {
	IsEnabled() bool
	RecordAssociation(candidateIdx int, markerID uint32, distance, areaDelta float64, accepted bool)
	RecordSuppression(candidateIdx, containerIdx int)
	RecordTransition(markerID uint32, from, to string)
}

// Match pairs a candidate with the marker it updated.
type Match struct {
	CandidateIndex int      `json:"candidate_index"`
	MarkerID       MarkerID `json:"marker_id"`
	Distance       float64  `json:"distance"`
}

// FrameResult summarises one association pass.
type FrameResult struct {
	FrameIndex  uint64     `json:"frame_index"`
	Timestamp   time.Time  `json:"timestamp"`
	Matched     []Match    `json:"matched,omitempty"`
	Created     []MarkerID `json:"created,omitempty"`
	Pending     []MarkerID `json:"pending,omitempty"`     // Armed this frame
	Reactivated []MarkerID `json:"reactivated,omitempty"` // Pending markers matched again
	Removed     []MarkerID `json:"removed,omitempty"`
	Suppressed  []int      `json:"suppressed,omitempty"` // Nested candidate indices
	Rejected    []int      `json:"rejected,omitempty"`   // Unmatched candidates not admitted
}

// TrackerStats holds running totals since construction or the last Reset.
type TrackerStats struct {
	Frames      uint64 `json:"frames"`
	Created     uint64 `json:"created"`
	Removed     uint64 `json:"removed"`
	Reactivated uint64 `json:"reactivated"`
	Suppressed  uint64 `json:"suppressed"`
	Rejected    uint64 `json:"rejected"`
	Live        int    `json:"live"`
	Pending     int    `json:"pending"`
}

// Tracker associates per-frame candidates with tracked markers and manages
// their removal grace period.
type Tracker struct {
	Config TrackerConfig

	// Clock stamps frames passed to Step.
	Clock timeutil.Clock

	// Events receives lifecycle transitions (optional).
	Events EventSink

	// DebugCollector captures association internals (optional).
	DebugCollector DebugCollector

	ids     IDSource
	markers map[MarkerID]*Marker
	stats   TrackerStats
	last    time.Time
	pending []Event // this frame's events, delivered after unlock

	mu sync.RWMutex
}

// NewTracker creates a tracker with the given configuration and identifier
// source. A nil source falls back to a counter starting at 0.
func NewTracker(config TrackerConfig, ids IDSource) *Tracker {
	if ids == nil {
		ids = NewCounterIDSource(0)
	}
	return &Tracker{
		Config:  config,
		Clock:   timeutil.RealClock{},
		ids:     ids,
		markers: make(map[MarkerID]*Marker),
	}
}

// UpdateConfig applies the given function to the tracker's configuration
// under the tracker lock.
func (t *Tracker) UpdateConfig(fn func(*TrackerConfig)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.Config)
}

// Reset drops every marker and zeroes the running totals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markers = make(map[MarkerID]*Marker)
	t.stats = TrackerStats{}
	t.last = time.Time{}
}

// Step runs Update stamped with the tracker clock.
func (t *Tracker) Step(candidates []Candidate) FrameResult {
	return t.Update(candidates, t.Clock.Now())
}

// Update processes one frame of candidates. This is the main entry point
// for the tracking pipeline. Lifecycle events are delivered to Events after
// the frame is applied and the tracker lock is released.
func (t *Tracker) Update(candidates []Candidate, now time.Time) FrameResult {
	t.mu.Lock()
	res := t.update(candidates, now)
	events := t.pending
	t.pending = nil
	sink := t.Events
	t.mu.Unlock()

	deliver(sink, events)
	return res
}

func (t *Tracker) update(candidates []Candidate, now time.Time) FrameResult {
	t.stats.Frames++
	frame := t.stats.Frames
	if !t.last.IsZero() && now.Before(t.last) {
		monitoring.Logf("[tracker] frame %d timestamp %s precedes previous frame %s", frame, now.Format(time.RFC3339Nano), t.last.Format(time.RFC3339Nano))
	}
	t.last = now

	res := FrameResult{FrameIndex: frame, Timestamp: now}

	// Step 1: drop candidates nested inside a larger candidate
	kept := t.suppressNested(candidates, &res)

	// Step 2: competitive association
	matches := t.associate(candidates, kept)

	// Step 3: update matched markers, re-activating pending ones
	matchedMarkers := make(map[MarkerID]bool, len(matches))
	matchedCandidates := make(map[int]bool, len(matches))
	for _, mt := range matches {
		m := t.markers[mt.MarkerID]
		matchedMarkers[mt.MarkerID] = true
		matchedCandidates[mt.CandidateIndex] = true

		if m.IsPendingRemoval() {
			m.ClearRemoval()
			res.Reactivated = append(res.Reactivated, m.id)
			t.stats.Reactivated++
			t.recordTransition(m.id, StatePendingRemoval, StateActive)
			t.emit(EventReactivated, m, frame, now)
		}
		m.Update(candidates[mt.CandidateIndex])
		res.Matched = append(res.Matched, mt)
		t.emit(EventUpdated, m, frame, now)
	}

	// Step 4: arm the removal timer once per unmatched streak
	ids := t.sortedIDs()
	for _, id := range ids {
		if matchedMarkers[id] {
			continue
		}
		m := t.markers[id]
		if m.IsPendingRemoval() {
			continue
		}
		m.MarkRemovalStart(now)
		res.Pending = append(res.Pending, id)
		t.recordTransition(id, StateActive, StatePendingRemoval)
		t.emit(EventPendingRemoval, m, frame, now)
	}

	// Step 5: evict markers whose grace period has expired
	for _, id := range ids {
		m := t.markers[id]
		if !m.CanBeRemoved(now, t.Config.RemovalGracePeriod) {
			continue
		}
		delete(t.markers, id)
		res.Removed = append(res.Removed, id)
		t.stats.Removed++
		t.recordTransition(id, StateRemovable, "")
		t.emit(EventRemoved, m, frame, now)
	}

	// Step 6: start markers for unmatched candidates
	for _, ci := range kept {
		if matchedCandidates[ci] {
			continue
		}
		if t.Config.MaxMarkers > 0 && len(t.markers) >= t.Config.MaxMarkers {
			res.Rejected = append(res.Rejected, ci)
			t.stats.Rejected++
			continue
		}
		id, err := t.nextID()
		if err != nil {
			monitoring.Logf("[tracker] frame %d: candidate %d not admitted: %v", frame, ci, err)
			res.Rejected = append(res.Rejected, ci)
			t.stats.Rejected++
			continue
		}
		m := NewMarkerFromCandidate(id, candidates[ci])
		t.markers[id] = m
		res.Created = append(res.Created, id)
		t.stats.Created++
		t.recordTransition(id, "", StateActive)
		t.emit(EventCreated, m, frame, now)
	}

	monitoring.Debugf("[tracker] frame %d: candidates=%d suppressed=%d matched=%d created=%d pending=%d reactivated=%d removed=%d live=%d",
		frame, len(candidates), len(res.Suppressed), len(res.Matched), len(res.Created),
		len(res.Pending), len(res.Reactivated), len(res.Removed), len(t.markers))

	return res
}

// nextID draws identifiers until one is neither Unassigned nor live.
func (t *Tracker) nextID() (MarkerID, error) {
	for i := 0; i < maxIDDraws; i++ {
		id := t.ids.NextID()
		if id == Unassigned {
			continue
		}
		if _, live := t.markers[id]; live {
			continue
		}
		return id, nil
	}
	return Unassigned, ErrIDExhausted
}

// sortedIDs returns live marker ids in ascending order so every pass visits
// markers deterministically.
func (t *Tracker) sortedIDs() []MarkerID {
	ids := make([]MarkerID, 0, len(t.markers))
	for id := range t.markers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) emit(kind EventKind, m *Marker, frame uint64, now time.Time) {
	if t.Events == nil {
		return
	}
	t.pending = append(t.pending, newEvent(kind, m, frame, now))
}

func deliver(sink EventSink, events []Event) {
	if sink == nil || len(events) == 0 {
		return
	}
	if b, ok := sink.(BatchEventSink); ok {
		b.RecordEvents(events)
		return
	}
	for _, e := range events {
		sink.RecordEvent(e)
	}
}

func (t *Tracker) recordTransition(id MarkerID, from, to MarkerState) {
	if t.DebugCollector != nil && t.DebugCollector.IsEnabled() {
		t.DebugCollector.RecordTransition(uint32(id), string(from), string(to))
	}
}

// Markers returns snapshots of all live markers ordered by id.
func (t *Tracker) Markers() []MarkerSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.sortedIDs()
	out := make([]MarkerSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.markers[id].Snapshot(t.last, t.Config.RemovalGracePeriod))
	}
	return out
}

// Marker returns a snapshot of one marker.
func (t *Tracker) Marker(id MarkerID) (MarkerSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.markers[id]
	if !ok {
		return MarkerSnapshot{}, false
	}
	return m.Snapshot(t.last, t.Config.RemovalGracePeriod), true
}

// ConsumeUpdated polls the one-shot updated flag of a marker. The second
// result is false when the marker is not live.
func (t *Tracker) ConsumeUpdated(id MarkerID) (updated, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.markers[id]
	if !ok {
		return false, false
	}
	return m.ConsumeUpdatedFlag(), true
}

// SetPose attaches pose payload produced downstream to a live marker.
func (t *Tracker) SetPose(id MarkerID, p Pose) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.markers[id]
	if !ok {
		return false
	}
	m.SetPose(p)
	return true
}

// Len returns the number of live markers.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.markers)
}

// Stats returns running totals plus the current live and pending counts.
func (t *Tracker) Stats() TrackerStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.stats
	s.Live = len(t.markers)
	for _, m := range t.markers {
		if m.IsPendingRemoval() {
			s.Pending++
		}
	}
	return s
}
