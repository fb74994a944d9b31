package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/db"
	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	sqlite "github.com/banshee-data/fiducial-tracker/internal/fiducial/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const square = `{"corners": [[0,0],[10,0],[10,10],[0,10]], "orientation": 90}`

func testInput() string {
	return strings.Join([]string{
		`{"timestamp_ms": 0, "candidates": [` + square + `]}`,
		`{"timestamp_ms": 100, "candidates": [` + square + `]}`,
		`{"timestamp_ms": 200, "candidates": []}`,
		`{"timestamp_ms": 800, "candidates": []}`,
	}, "\n")
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, "", *configPath)
	assert.Equal(t, "-", *inputPath)
	assert.Equal(t, "", *dbPath)
	assert.False(t, *realtime)
	assert.False(t, *debugMode)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "counter", cfg.GetIDSource())

	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"distance_tolerance_px": 12, "id_source": "uuid"}`), 0o644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.GetDistanceTolerancePx())
	assert.Equal(t, "uuid", cfg.GetIDSource())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRun_RecordsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	err := run(context.Background(), options{
		Input:        strings.NewReader(testInput()),
		DBPath:       path,
		SessionLabel: "bench",
		Debug:        true,
	})
	require.NoError(t, err)

	database, err := db.Open(path)
	require.NoError(t, err)
	defer database.Close()

	sessions, err := sqlite.NewSessionStore(database.DB).List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "bench", sessions[0].Label)
	assert.NotNil(t, sessions[0].EndedAt)

	events, err := sqlite.NewEventStore(database.DB, sessions[0].SessionID).ListBySession(sessions[0].SessionID)
	require.NoError(t, err)
	var kinds []fiducial.EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []fiducial.EventKind{
		fiducial.EventCreated,
		fiducial.EventUpdated,
		fiducial.EventPendingRemoval,
		fiducial.EventRemoved,
	}, kinds)
}

func TestRun_WithoutDatabase(t *testing.T) {
	err := run(context.Background(), options{Input: strings.NewReader(testInput())})
	assert.NoError(t, err)
}

func TestRun_BadInput(t *testing.T) {
	err := run(context.Background(), options{Input: strings.NewReader(`{"candidates": []}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx, options{Input: strings.NewReader(testInput())}))
}

func TestRun_BadConfig(t *testing.T) {
	err := run(context.Background(), options{
		ConfigPath: filepath.Join(t.TempDir(), "tuning.yaml"),
		Input:      strings.NewReader(""),
	})
	assert.Error(t, err)
}

func TestRun_Realtime(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp_ms": 0, "candidates": [` + square + `]}`,
		`{"timestamp_ms": 20, "candidates": [` + square + `]}`,
	}, "\n")
	start := time.Now()
	require.NoError(t, run(context.Background(), options{Input: strings.NewReader(input), Realtime: true}))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
