package ingest

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/banshee-data/fiducial-tracker/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestNormalizeWinding(t *testing.T) {
	t.Parallel()

	positive := [4]image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	negative := [4]image.Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}}

	tests := []struct {
		name    string
		in      [4]image.Point
		want    [4]image.Point
		wantErr error
	}{
		{"already positive", positive, positive, nil},
		{"reversed", negative, positive, nil},
		{"bowtie", [4]image.Point{{0, 0}, {10, 10}, {10, 0}, {0, 10}}, [4]image.Point{}, ErrNonConvex},
		{"dart", [4]image.Point{{0, 0}, {10, 5}, {0, 10}, {3, 5}}, [4]image.Point{}, ErrNonConvex},
		{"collapsed", [4]image.Point{{1, 1}, {1, 1}, {1, 1}, {1, 1}}, [4]image.Point{}, ErrNonConvex},
		{"duplicate corner", [4]image.Point{{0, 0}, {0, 0}, {10, 0}, {0, 10}}, [4]image.Point{}, ErrNonConvex},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeWinding(tt.in)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, geometry.SignedArea(got[:]), 0.0)
		})
	}
}

func TestNormalizeWinding_ContainsAfterNormalize(t *testing.T) {
	t.Parallel()

	corners, err := NormalizeWinding([4]image.Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}})
	require.NoError(t, err)

	m := fiducial.NewMarker()
	m.UpdateFields(r2.Vec{X: 5, Y: 5}, corners, 500, 0)

	var c fiducial.Candidate
	c.Centroid = r2.Vec{X: 5, Y: 5}
	c.Area = 100
	assert.True(t, m.Contains(c))
}

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"timestamp_ms": 1500, "candidates": [
		{"centroid": [5.5, 4], "corners": [[0,0],[10,0],[10,10],[0,10]], "area": 90, "orientation": 2},
		{"corners": [[20,20],[20,30],[30,30],[30,20]]}
	]}`))
	require.NoError(t, err)

	assert.Equal(t, time.UnixMilli(1500).UTC(), f.Timestamp)
	require.Len(t, f.Candidates, 2)

	c0 := f.Candidates[0]
	assert.Equal(t, r2.Vec{X: 5.5, Y: 4}, c0.Centroid)
	assert.Equal(t, 90.0, c0.Area)
	assert.Equal(t, 2, c0.Orientation)

	c1 := f.Candidates[1]
	assert.Equal(t, r2.Vec{X: 25, Y: 25}, c1.Centroid, "derived from corners")
	assert.Equal(t, 100.0, c1.Area, "derived from corners")
	assert.Equal(t, [4]image.Point{{20, 20}, {30, 20}, {30, 30}, {20, 30}}, c1.Corners, "rewound")
}

func TestDecodeFrame_RejectsBadCandidates(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"timestamp_ms": 0, "candidates": [
		{"corners": [[0,0],[10,0],[10,10]]},
		{"corners": [[0,0],[10,10],[10,0],[0,10]]},
		{"corners": [[0,0],[10,0],[10,10],[0,10]]}
	]}`))
	require.NoError(t, err)
	assert.Len(t, f.Candidates, 1)
	assert.Equal(t, 2, f.Rejected)
}

func TestDecodeFrame_SubPixelCorners(t *testing.T) {
	t.Parallel()

	f, err := DecodeFrame([]byte(`{"timestamp_ms": 0, "candidates": [
		{"corners": [[0.4,0],[9.6,0.2],[10,10.5],[-0.2,9.7]]},
		{"corners": [[0,0],[1e30,0],[10,10],[0,10]]}
	]}`))
	require.NoError(t, err)
	require.Len(t, f.Candidates, 1)
	assert.Equal(t, [4]image.Point{{0, 0}, {10, 0}, {10, 11}, {0, 10}}, f.Candidates[0].Corners)
	assert.Equal(t, 1, f.Rejected, "out of range corner")
}

func TestReader_SubPixelLineDoesNotStopReplay(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"timestamp_ms": 0, "candidates": [{"corners": [[0,0],[10,0],[10,10],[0,10]]}]}`,
		`{"timestamp_ms": 33, "candidates": [{"corners": [[0.5,0],[10,0],[10,10],[0,10]]}]}`,
		`{"timestamp_ms": 66, "candidates": [{"corners": [[0,0],[10,0],[10,10],[0,10]]}]}`,
	}, "\n")
	tracker := fiducial.NewTracker(fiducial.TrackerConfig{
		DistanceTolerance:  30,
		AreaTolerance:      1000,
		RemovalGracePeriod: 500 * time.Millisecond,
	}, nil)
	n, err := Replay(context.Background(), NewReader(strings.NewReader(input)), tracker, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, tracker.Len())
}

func TestDecodeFrame_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeFrame([]byte(`{"candidates": []}`))
	assert.ErrorContains(t, err, "missing timestamp_ms")

	_, err = DecodeFrame([]byte(`{"timestamp_ms": "soon"}`))
	assert.ErrorContains(t, err, "decode frame")
}

func TestReader(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`# recorded 2026-03-01`,
		`{"timestamp_ms": 0, "candidates": []}`,
		``,
		`{"timestamp_ms": 33, "candidates": [{"corners": [[0,0],[4,0],[4,4],[0,4]]}]}`,
		`not json`,
	}, "\n")
	r := NewReader(strings.NewReader(input))

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, f.Line)
	assert.Empty(t, f.Candidates)

	f, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, 4, f.Line)
	assert.Len(t, f.Candidates, 1)

	_, err = r.Next()
	assert.ErrorContains(t, err, "line 5")

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReplay(t *testing.T) {
	t.Parallel()

	input := `{"timestamp_ms": 0, "candidates": [{"corners": [[0,0],[10,0],[10,10],[0,10]]}]}
{"timestamp_ms": 300, "candidates": []}
{"timestamp_ms": 600, "candidates": []}
{"timestamp_ms": 900, "candidates": []}
`
	tracker := fiducial.NewTracker(fiducial.TrackerConfig{
		DistanceTolerance:  30,
		AreaTolerance:      1000,
		RemovalGracePeriod: 500 * time.Millisecond,
	}, nil)

	var removedAt []int64
	n, err := Replay(context.Background(), NewReader(strings.NewReader(input)), tracker,
		func(f Frame, res fiducial.FrameResult) error {
			if len(res.Removed) > 0 {
				removedAt = append(removedAt, f.Timestamp.UnixMilli())
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int64{900}, removedAt)
}

func TestReplay_StopsOnHandlerError(t *testing.T) {
	t.Parallel()

	input := `{"timestamp_ms": 0, "candidates": []}
{"timestamp_ms": 1, "candidates": []}
`
	stop := errors.New("stop")
	tracker := fiducial.NewTracker(fiducial.TrackerConfig{}, nil)
	n, err := Replay(context.Background(), NewReader(strings.NewReader(input)), tracker,
		func(Frame, fiducial.FrameResult) error { return stop })
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 1, n)
}

func TestReplay_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tracker := fiducial.NewTracker(fiducial.TrackerConfig{}, nil)
	n, err := Replay(ctx, NewReader(strings.NewReader(`{"timestamp_ms": 0}`)), tracker, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, n)
}
