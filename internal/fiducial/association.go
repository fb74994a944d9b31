package fiducial

import (
	"math"

	"github.com/banshee-data/fiducial-tracker/internal/geometry"
)

// suppressNested returns the indices of candidates that survive nested
// suppression, in input order. A candidate is dropped when another
// candidate of the same frame Contains it.
func (t *Tracker) suppressNested(candidates []Candidate, res *FrameResult) []int {
	kept := make([]int, 0, len(candidates))
	if !t.Config.SuppressNested {
		for i := range candidates {
			kept = append(kept, i)
		}
		return kept
	}

	views := make([]*Marker, len(candidates))
	for i, c := range candidates {
		views[i] = markerView(c)
	}

	for i, c := range candidates {
		container := -1
		for j, outer := range views {
			if i != j && outer.Contains(c) {
				container = j
				break
			}
		}
		if container < 0 {
			kept = append(kept, i)
			continue
		}
		res.Suppressed = append(res.Suppressed, i)
		t.stats.Suppressed++
		if t.DebugCollector != nil && t.DebugCollector.IsEnabled() {
			t.DebugCollector.RecordSuppression(i, container)
		}
	}
	return kept
}

// associate pairs candidates with markers, smallest qualifying distance
// first. Each sweep shares one running minimum across every free
// (candidate, marker) pair, so the last pair CanMatch accepts is the global
// nearest; it is consumed and the sweep repeats until nothing qualifies.
// Ties keep the first pair visited: candidate order, then ascending id.
func (t *Tracker) associate(candidates []Candidate, kept []int) []Match {
	ids := t.sortedIDs()
	if len(kept) == 0 || len(ids) == 0 {
		return nil
	}

	usedCandidate := make(map[int]bool, len(kept))
	usedMarker := make(map[MarkerID]bool, len(ids))
	var matches []Match

	for {
		best := math.Inf(1)
		bestCandidate, bestMarker := -1, Unassigned
		for _, ci := range kept {
			if usedCandidate[ci] {
				continue
			}
			for _, id := range ids {
				if usedMarker[id] {
					continue
				}
				if t.markers[id].CanMatch(candidates[ci], &best, t.Config) {
					bestCandidate, bestMarker = ci, id
				}
			}
		}
		if bestCandidate < 0 {
			break
		}
		usedCandidate[bestCandidate] = true
		usedMarker[bestMarker] = true
		matches = append(matches, Match{CandidateIndex: bestCandidate, MarkerID: bestMarker, Distance: best})
	}

	if t.DebugCollector != nil && t.DebugCollector.IsEnabled() {
		accepted := make(map[[2]int]bool, len(matches))
		for _, mt := range matches {
			accepted[[2]int{mt.CandidateIndex, int(mt.MarkerID)}] = true
		}
		for _, ci := range kept {
			c := candidates[ci]
			for _, id := range ids {
				m := t.markers[id]
				d := geometry.Distance(c.Centroid, m.quad.Centroid)
				areaDelta := math.Abs(math.Abs(c.Area) - m.quad.Area)
				t.DebugCollector.RecordAssociation(ci, uint32(id), d, areaDelta, accepted[[2]int{ci, int(id)}])
			}
		}
	}

	return matches
}
