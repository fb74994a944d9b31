package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.DistanceTolerancePx == nil || *cfg.DistanceTolerancePx != 30 {
		t.Errorf("Expected DistanceTolerancePx 30, got %v", cfg.DistanceTolerancePx)
	}
	if cfg.AreaTolerancePx2 == nil || *cfg.AreaTolerancePx2 != 1000 {
		t.Errorf("Expected AreaTolerancePx2 1000, got %v", cfg.AreaTolerancePx2)
	}
	if cfg.RemovalGracePeriod == nil || *cfg.RemovalGracePeriod != "500ms" {
		t.Errorf("Expected RemovalGracePeriod '500ms', got %v", cfg.RemovalGracePeriod)
	}

	// Test getter methods
	if cfg.GetRemovalGracePeriod() != 500*time.Millisecond {
		t.Errorf("GetRemovalGracePeriod() = %v, want 500ms", cfg.GetRemovalGracePeriod())
	}
	if cfg.GetMaxMarkers() != 256 {
		t.Errorf("GetMaxMarkers() = %d, want 256", cfg.GetMaxMarkers())
	}
	if !cfg.GetSuppressNested() {
		t.Error("GetSuppressNested() = false, want true")
	}
	if cfg.GetIDSource() != IDSourceCounter {
		t.Errorf("GetIDSource() = %q, want %q", cfg.GetIDSource(), IDSourceCounter)
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	empty := EmptyTuningConfig()
	defaults := DefaultTuningConfig()

	if empty.GetDistanceTolerancePx() != defaults.GetDistanceTolerancePx() {
		t.Errorf("distance tolerance: empty %f, defaults %f", empty.GetDistanceTolerancePx(), defaults.GetDistanceTolerancePx())
	}
	if empty.GetAreaTolerancePx2() != defaults.GetAreaTolerancePx2() {
		t.Errorf("area tolerance: empty %f, defaults %f", empty.GetAreaTolerancePx2(), defaults.GetAreaTolerancePx2())
	}
	if empty.GetRemovalGracePeriod() != defaults.GetRemovalGracePeriod() {
		t.Errorf("grace: empty %v, defaults %v", empty.GetRemovalGracePeriod(), defaults.GetRemovalGracePeriod())
	}
	if empty.GetMaxMarkers() != defaults.GetMaxMarkers() {
		t.Errorf("max markers: empty %d, defaults %d", empty.GetMaxMarkers(), defaults.GetMaxMarkers())
	}
	if empty.GetSuppressNested() != defaults.GetSuppressNested() {
		t.Errorf("suppress nested: empty %v, defaults %v", empty.GetSuppressNested(), defaults.GetSuppressNested())
	}
	if empty.GetIDSource() != defaults.GetIDSource() {
		t.Errorf("id source: empty %q, defaults %q", empty.GetIDSource(), defaults.GetIDSource())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "distance_tolerance_px": 12.5,
  "area_tolerance_px2": 400,
  "removal_grace_period": "1s",
  "suppress_nested": false,
  "id_source": "uuid"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetDistanceTolerancePx(); got != 12.5 {
		t.Errorf("GetDistanceTolerancePx() = %f, want 12.5", got)
	}
	if got := cfg.GetAreaTolerancePx2(); got != 400 {
		t.Errorf("GetAreaTolerancePx2() = %f, want 400", got)
	}
	if got := cfg.GetRemovalGracePeriod(); got != time.Second {
		t.Errorf("GetRemovalGracePeriod() = %v, want 1s", got)
	}
	if cfg.GetSuppressNested() {
		t.Error("GetSuppressNested() = true, want false")
	}
	if got := cfg.GetIDSource(); got != IDSourceUUID {
		t.Errorf("GetIDSource() = %q, want %q", got, IDSourceUUID)
	}
	// Omitted field keeps its default.
	if got := cfg.GetMaxMarkers(); got != 256 {
		t.Errorf("GetMaxMarkers() = %d, want 256", got)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if _, err := LoadTuningConfig(configPath); err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "distance_tolerance_px": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if cfg.GetDistanceTolerancePx() != 30 {
		t.Errorf("defaults file distance tolerance = %f, want 30", cfg.GetDistanceTolerancePx())
	}
	if cfg.GetRemovalGracePeriod() != 500*time.Millisecond {
		t.Errorf("defaults file grace period = %v, want 500ms", cfg.GetRemovalGracePeriod())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultTuningConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name:    "negative distance tolerance",
			cfg:     &TuningConfig{DistanceTolerancePx: ptrFloat64(-1)},
			wantErr: true,
		},
		{
			name:    "negative area tolerance",
			cfg:     &TuningConfig{AreaTolerancePx2: ptrFloat64(-0.5)},
			wantErr: true,
		},
		{
			name:    "invalid grace period",
			cfg:     &TuningConfig{RemovalGracePeriod: ptrString("soon")},
			wantErr: true,
		},
		{
			name:    "negative grace period",
			cfg:     &TuningConfig{RemovalGracePeriod: ptrString("-5ms")},
			wantErr: true,
		},
		{
			name:    "zero max markers",
			cfg:     &TuningConfig{MaxMarkers: ptrInt(0)},
			wantErr: true,
		},
		{
			name:    "unknown id source",
			cfg:     &TuningConfig{IDSource: ptrString("random")},
			wantErr: true,
		},
		{
			name:    "empty id source selects the default",
			cfg:     &TuningConfig{IDSource: ptrString("")},
			wantErr: false,
		},
		{
			name:    "uuid id source",
			cfg:     &TuningConfig{IDSource: ptrString(IDSourceUUID)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetRemovalGracePeriod(t *testing.T) {
	tests := []struct {
		name string
		cfg  *TuningConfig
		want time.Duration
	}{
		{"nil uses default", &TuningConfig{}, 500 * time.Millisecond},
		{"empty uses default", &TuningConfig{RemovalGracePeriod: ptrString("")}, 500 * time.Millisecond},
		{"explicit", &TuningConfig{RemovalGracePeriod: ptrString("2s")}, 2 * time.Second},
		{"parse error uses default", &TuningConfig{RemovalGracePeriod: ptrString("bogus")}, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetRemovalGracePeriod(); got != tt.want {
				t.Errorf("GetRemovalGracePeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}
