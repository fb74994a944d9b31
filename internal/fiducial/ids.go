package fiducial

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/fiducial-tracker/internal/config"
	"github.com/google/uuid"
)

// IDSource issues marker identifiers. The tracker draws one id per created
// marker and redraws when an id is Unassigned or already live.
type IDSource interface {
	NextID() MarkerID
}

// CounterIDSource issues sequential identifiers starting at 0. It is safe
// for use by several trackers at once.
type CounterIDSource struct {
	next atomic.Uint32
}

// NewCounterIDSource returns a counter whose first id is start.
func NewCounterIDSource(start MarkerID) *CounterIDSource {
	s := &CounterIDSource{}
	s.next.Store(uint32(start))
	return s
}

// NextID returns the next sequential id.
func (s *CounterIDSource) NextID() MarkerID {
	return MarkerID(s.next.Add(1) - 1)
}

// UUIDSource issues identifiers from the leading 32 bits of random UUIDs,
// which keeps ids unpredictable across process runs.
type UUIDSource struct {
	newUUID func() uuid.UUID
}

// NewUUIDSource returns a source backed by uuid.New.
func NewUUIDSource() *UUIDSource {
	return &UUIDSource{newUUID: uuid.New}
}

// NextID returns the first four bytes of a fresh UUID as an id.
func (s *UUIDSource) NextID() MarkerID {
	return MarkerID(s.newUUID().ID())
}

// NewIDSource builds the identifier source named by the id_source tuning
// parameter.
func NewIDSource(name string) (IDSource, error) {
	switch name {
	case "", config.IDSourceCounter:
		return NewCounterIDSource(0), nil
	case config.IDSourceUUID:
		return NewUUIDSource(), nil
	default:
		return nil, fmt.Errorf("unknown id source %q", name)
	}
}
