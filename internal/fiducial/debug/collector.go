// Package debug provides instrumentation for the fiducial marker tracker.
// The DebugCollector captures association internals (candidate-marker
// distances, nested suppression, lifecycle transitions) for inspection and
// tuning of the match tolerances.
package debug

// Pre-allocation capacities for debug frame slices. A tabletop scene has a
// few dozen markers at most.
const (
	defaultAssociationCapacity = 64
	defaultSuppressionCapacity = 8
	defaultTransitionCapacity  = 16
)

// DebugCollector accumulates debug artifacts during a single frame's processing.
//
// The collector is stateful: call BeginFrame before Tracker.Update, then
// Emit at frame completion to extract the artifacts. It is driven from the
// frame-processing goroutine only.
type DebugCollector struct {
	enabled bool
	current *DebugFrame
}

// DebugFrame contains all debug artifacts for a single frame.
type DebugFrame struct {
	FrameID uint64 `json:"frame_id"`

	// Every candidate-marker pair evaluated during association
	Associations []AssociationRecord `json:"associations"`

	// Candidates dropped as nested inside another candidate
	Suppressions []SuppressionRecord `json:"suppressions"`

	// Lifecycle state changes applied this frame
	Transitions []TransitionRecord `json:"transitions"`
}

// AssociationRecord captures a single candidate-marker pairing considered
// during association.
type AssociationRecord struct {
	CandidateIndex int     `json:"candidate_index"`
	MarkerID       uint32  `json:"marker_id"`
	Distance       float64 `json:"distance"`   // Centroid distance (pixels)
	AreaDelta      float64 `json:"area_delta"` // Absolute area difference (pixels²)
	Accepted       bool    `json:"accepted"`
}

// SuppressionRecord names a nested candidate and the candidate containing it.
type SuppressionRecord struct {
	CandidateIndex int `json:"candidate_index"`
	ContainerIndex int `json:"container_index"`
}

// TransitionRecord is a marker lifecycle change. An empty From means the
// marker was created; an empty To means it was evicted.
type TransitionRecord struct {
	MarkerID uint32 `json:"marker_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// NewDebugCollector creates a collector that's initially disabled.
// Call SetEnabled(true) to begin collecting artifacts.
func NewDebugCollector() *DebugCollector {
	return &DebugCollector{}
}

// SetEnabled controls whether the collector records artifacts.
// When disabled, all Record*() calls are no-ops.
func (c *DebugCollector) SetEnabled(enabled bool) {
	c.enabled = enabled
}

// IsEnabled returns true if the collector is actively recording.
func (c *DebugCollector) IsEnabled() bool {
	return c.enabled
}

// BeginFrame initialises collection for a new frame.
// Must be called before any Record*() calls.
func (c *DebugCollector) BeginFrame(frameID uint64) {
	if !c.enabled {
		return
	}
	c.current = &DebugFrame{
		FrameID:      frameID,
		Associations: make([]AssociationRecord, 0, defaultAssociationCapacity),
		Suppressions: make([]SuppressionRecord, 0, defaultSuppressionCapacity),
		Transitions:  make([]TransitionRecord, 0, defaultTransitionCapacity),
	}
}

// RecordAssociation captures a candidate-marker pairing evaluation.
func (c *DebugCollector) RecordAssociation(candidateIdx int, markerID uint32, distance, areaDelta float64, accepted bool) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Associations = append(c.current.Associations, AssociationRecord{
		CandidateIndex: candidateIdx,
		MarkerID:       markerID,
		Distance:       distance,
		AreaDelta:      areaDelta,
		Accepted:       accepted,
	})
}

// RecordSuppression captures a candidate dropped by nested suppression.
func (c *DebugCollector) RecordSuppression(candidateIdx, containerIdx int) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Suppressions = append(c.current.Suppressions, SuppressionRecord{
		CandidateIndex: candidateIdx,
		ContainerIndex: containerIdx,
	})
}

// RecordTransition captures a marker lifecycle change.
func (c *DebugCollector) RecordTransition(markerID uint32, from, to string) {
	if !c.enabled || c.current == nil {
		return
	}
	c.current.Transitions = append(c.current.Transitions, TransitionRecord{
		MarkerID: markerID,
		From:     from,
		To:       to,
	})
}

// Emit returns the accumulated debug frame and prepares for the next frame.
// Returns nil if collection is disabled or no frame was begun.
func (c *DebugCollector) Emit() *DebugFrame {
	if !c.enabled || c.current == nil {
		return nil
	}
	frame := c.current
	c.current = nil // caller must BeginFrame again
	return frame
}

// Reset clears any pending artifacts without emitting them.
func (c *DebugCollector) Reset() {
	c.current = nil
}
