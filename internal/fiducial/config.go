package fiducial

import (
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/config"
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	DistanceTolerance  float64       // Maximum centroid distance for a match (pixels)
	AreaTolerance      float64       // Maximum absolute area difference for a match (pixels²)
	RemovalGracePeriod time.Duration // Unmatched time before a marker is evicted
	MaxMarkers         int           // Maximum number of concurrently tracked markers
	SuppressNested     bool          // Drop candidates nested inside a larger candidate
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical tuning defaults file (config/tuning.defaults.json).
// Panics if the file cannot be found. Intended for tests and binaries
// that have already validated config availability.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.MustLoadDefaultConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		DistanceTolerance:  cfg.GetDistanceTolerancePx(),
		AreaTolerance:      cfg.GetAreaTolerancePx2(),
		RemovalGracePeriod: cfg.GetRemovalGracePeriod(),
		MaxMarkers:         cfg.GetMaxMarkers(),
		SuppressNested:     cfg.GetSuppressNested(),
	}
}
