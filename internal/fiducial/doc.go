// Package fiducial owns per-frame association and lifecycle tracking of
// planar fiducial markers.
//
// Responsibilities: nested-candidate suppression, competitive
// nearest-candidate matching under distance and area tolerances, and
// grace-period removal of markers that stop appearing.
// Key types: Candidate, Marker, Tracker.
//
// Detection, pose estimation and identifier policy live outside this
// package. Identifiers come from an injected IDSource; pose angles are
// carried as opaque payload. Corner winding is normalised by the ingest
// package before candidates reach the tracker.
package fiducial
