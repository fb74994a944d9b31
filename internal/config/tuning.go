package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Identifier source names accepted by id_source.
const (
	IDSourceCounter = "counter"
	IDSourceUUID    = "uuid"
)

// TuningConfig represents the root configuration for tracker tuning.
// Every field is optional; the Get* accessors supply compiled defaults so
// partial files are safe.
type TuningConfig struct {
	// Association thresholds
	DistanceTolerancePx *float64 `json:"distance_tolerance_px,omitempty"`
	AreaTolerancePx2    *float64 `json:"area_tolerance_px2,omitempty"`

	// Lifecycle
	RemovalGracePeriod *string `json:"removal_grace_period,omitempty"` // duration string like "500ms"
	MaxMarkers         *int    `json:"max_markers,omitempty"`

	// Candidate filtering
	SuppressNested *bool `json:"suppress_nested,omitempty"`

	// Identifier issuance: "counter" or "uuid"
	IDSource *string `json:"id_source,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the compiled defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		DistanceTolerancePx: ptrFloat64(30),
		AreaTolerancePx2:    ptrFloat64(1000),
		RemovalGracePeriod:  ptrString("500ms"),
		MaxMarkers:          ptrInt(256),
		SuppressNested:      ptrBool(true),
		IDSource:            ptrString(IDSourceCounter),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fiducial/monitor/
		"../../../../" + DefaultConfigPath, // from internal/fiducial/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.DistanceTolerancePx != nil && *c.DistanceTolerancePx < 0 {
		return fmt.Errorf("distance_tolerance_px must be non-negative, got %f", *c.DistanceTolerancePx)
	}
	if c.AreaTolerancePx2 != nil && *c.AreaTolerancePx2 < 0 {
		return fmt.Errorf("area_tolerance_px2 must be non-negative, got %f", *c.AreaTolerancePx2)
	}

	if c.RemovalGracePeriod != nil && *c.RemovalGracePeriod != "" {
		d, err := time.ParseDuration(*c.RemovalGracePeriod)
		if err != nil {
			return fmt.Errorf("invalid removal_grace_period '%s': %w", *c.RemovalGracePeriod, err)
		}
		if d < 0 {
			return fmt.Errorf("removal_grace_period must be non-negative, got %s", d)
		}
	}

	if c.MaxMarkers != nil && *c.MaxMarkers <= 0 {
		return fmt.Errorf("max_markers must be positive, got %d", *c.MaxMarkers)
	}

	if c.IDSource != nil {
		switch *c.IDSource {
		case "", IDSourceCounter, IDSourceUUID:
		default:
			return fmt.Errorf("id_source must be %q or %q, got %q", IDSourceCounter, IDSourceUUID, *c.IDSource)
		}
	}

	return nil
}

// GetDistanceTolerancePx returns the distance_tolerance_px value or the default.
func (c *TuningConfig) GetDistanceTolerancePx() float64 {
	if c.DistanceTolerancePx == nil {
		return 30.0
	}
	return *c.DistanceTolerancePx
}

// GetAreaTolerancePx2 returns the area_tolerance_px2 value or the default.
func (c *TuningConfig) GetAreaTolerancePx2() float64 {
	if c.AreaTolerancePx2 == nil {
		return 1000.0
	}
	return *c.AreaTolerancePx2
}

// GetRemovalGracePeriod parses and returns the RemovalGracePeriod as a time.Duration.
func (c *TuningConfig) GetRemovalGracePeriod() time.Duration {
	if c.RemovalGracePeriod == nil || *c.RemovalGracePeriod == "" {
		return 500 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.RemovalGracePeriod)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetMaxMarkers returns the max_markers value or the default.
func (c *TuningConfig) GetMaxMarkers() int {
	if c.MaxMarkers == nil {
		return 256
	}
	return *c.MaxMarkers
}

// GetSuppressNested returns the suppress_nested value or the default.
func (c *TuningConfig) GetSuppressNested() bool {
	if c.SuppressNested == nil {
		return true
	}
	return *c.SuppressNested
}

// GetIDSource returns the id_source value or the default.
func (c *TuningConfig) GetIDSource() string {
	if c.IDSource == nil || *c.IDSource == "" {
		return IDSourceCounter
	}
	return *c.IDSource
}
