// Package sqlite contains SQLite repository implementations for the
// fiducial tracker's event log.
//
// Sessions group the events of one tracker run. Events are an analysis
// record of lifecycle transitions; the tracker never reloads markers from
// them on restart.
package sqlite
