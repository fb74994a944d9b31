package ingest

import (
	"errors"
	"image"

	"github.com/banshee-data/fiducial-tracker/internal/geometry"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrCornerCount is returned when a candidate does not have four corners.
	ErrCornerCount = errors.New("candidate must have exactly 4 corners")
	// ErrNonConvex is returned for self-intersecting, concave or degenerate quads.
	ErrNonConvex = errors.New("candidate quad is not convex")
	// ErrCornerRange is returned for corner coordinates outside the pixel range.
	ErrCornerRange = errors.New("corner coordinate out of range")
)

// NormalizeWinding returns the corners ordered so the quad has positive
// signed area, which puts interior points on the non-negative side of
// geometry.IsLeftOfSegment for every edge. The first corner is kept in
// place.
func NormalizeWinding(corners [4]image.Point) ([4]image.Point, error) {
	if !geometry.IsConvex(corners[:]) {
		return corners, ErrNonConvex
	}
	if geometry.SignedArea(corners[:]) < 0 {
		corners[1], corners[3] = corners[3], corners[1]
	}
	return corners, nil
}

// cornerCentroid is the mean of the four corners.
func cornerCentroid(corners [4]image.Point) r2.Vec {
	var c r2.Vec
	for _, p := range corners {
		c = r2.Add(c, geometry.ToVec(p))
	}
	return r2.Scale(0.25, c)
}
