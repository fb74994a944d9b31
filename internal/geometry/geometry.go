// Package geometry holds the planar primitives used by marker association:
// Euclidean distance, the left-of-segment orientation test and the signed
// perpendicular distance from a point to a line.
//
// Float coordinates use gonum's r2.Vec; integer corner coordinates use
// image.Point and are converted before any arithmetic so both forms return
// identical results for equal input values.
package geometry

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrDegenerateSegment is returned when a segment's endpoints coincide and
// no line direction can be derived from it.
var ErrDegenerateSegment = errors.New("geometry: degenerate segment (zero length)")

// ToVec converts an integer image point into a float vector.
func ToVec(p image.Point) r2.Vec {
	return r2.Vec{X: float64(p.X), Y: float64(p.Y)}
}

// Distance returns the Euclidean distance between p and q.
func Distance(p, q r2.Vec) float64 {
	return r2.Norm(r2.Sub(q, p))
}

// IntDistance is Distance for integer points.
func IntDistance(p, q image.Point) float64 {
	return Distance(ToVec(p), ToVec(q))
}

// IsLeftOfSegment returns the 2D cross product (b-a)×(p-a):
//
//	(bx-ax)(py-ay) - (px-ax)(by-ay)
//
// Positive means p lies strictly left of the directed segment a→b, zero
// means collinear and negative means right.
func IsLeftOfSegment(a, b, p r2.Vec) float64 {
	return r2.Cross(r2.Sub(b, a), r2.Sub(p, a))
}

// IntIsLeftOfSegment is IsLeftOfSegment for integer segment endpoints and a
// float test point, which is how quad edges are tested against centroids.
func IntIsLeftOfSegment(a, b image.Point, p r2.Vec) float64 {
	return IsLeftOfSegment(ToVec(a), ToVec(b), p)
}

// PerpendicularDistance returns the signed distance from c to the infinite
// line through a and b. The sign follows IsLeftOfSegment.
func PerpendicularDistance(a, b, c r2.Vec) (float64, error) {
	length := Distance(a, b)
	if length == 0 {
		return 0, ErrDegenerateSegment
	}
	return IsLeftOfSegment(a, b, c) / length, nil
}

// IntPerpendicularDistance is PerpendicularDistance for integer points.
func IntPerpendicularDistance(a, b, c image.Point) (float64, error) {
	return PerpendicularDistance(ToVec(a), ToVec(b), ToVec(c))
}

// SignedArea returns the shoelace area of the polygon described by pts.
// Counter-clockwise order in a y-up frame (clockwise on screen, where y grows
// downward) yields a positive value.
func SignedArea(pts []image.Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var sum float64
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += float64(pts[i].X)*float64(pts[j].Y) - float64(pts[j].X)*float64(pts[i].Y)
	}
	return sum / 2
}

// IsConvex reports whether pts describes a simple convex polygon with a
// consistent turn direction and non-zero area. Collinear runs are
// tolerated; repeated consecutive points are not.
func IsConvex(pts []image.Point) bool {
	n := len(pts)
	if n < 3 {
		return false
	}
	sign := 0
	for i := 0; i < n; i++ {
		a, b, c := pts[i], pts[(i+1)%n], pts[(i+2)%n]
		if a == b {
			return false
		}
		cross := IsLeftOfSegment(ToVec(a), ToVec(b), ToVec(c))
		switch {
		case cross > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case cross < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return sign != 0 && SignedArea(pts) != 0
}
