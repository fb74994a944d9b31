// Package ingest decodes detector output into per-frame candidate batches
// for the fiducial tracker.
//
// The wire format is JSON lines, one frame per line:
//
//	{"timestamp_ms": 1200, "candidates": [{"centroid": [x, y],
//	  "corners": [[x, y], [x, y], [x, y], [x, y]], "area": 400, "orientation": 0}]}
//
// centroid and area are optional and derived from the corners when absent.
// Sub-pixel corners are rounded to the nearest pixel.
// Blank lines and lines starting with '#' are skipped.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/banshee-data/fiducial-tracker/internal/geometry"
	"github.com/banshee-data/fiducial-tracker/internal/monitoring"
	"github.com/banshee-data/fiducial-tracker/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r2"
)

// maxLineBytes bounds a single frame line.
const maxLineBytes = 4 << 20

// maxCoordinate bounds corner coordinates in pixels.
const maxCoordinate = 1 << 24

type wireCandidate struct {
	Centroid    *[2]float64  `json:"centroid,omitempty"`
	Corners     [][2]float64 `json:"corners"`
	Area        *float64     `json:"area,omitempty"`
	Orientation int          `json:"orientation"`
}

type wireFrame struct {
	TimestampMs *int64          `json:"timestamp_ms"`
	Candidates  []wireCandidate `json:"candidates"`
}

// Frame is one decoded batch of candidates.
type Frame struct {
	Line       int
	Timestamp  time.Time
	Candidates []fiducial.Candidate
	Rejected   int // Candidates dropped for bad geometry
}

// Reader decodes frames from a JSON lines stream.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{sc: sc}
}

// Next returns the next frame, or io.EOF at the end of the stream.
// Malformed lines produce an error naming the line number; candidates with
// bad geometry are dropped from the frame and counted in Rejected.
func (r *Reader) Next() (Frame, error) {
	for r.sc.Scan() {
		r.line++
		data := bytes.TrimSpace(r.sc.Bytes())
		if len(data) == 0 || data[0] == '#' {
			continue
		}
		f, err := DecodeFrame(data)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		f.Line = r.line
		return f, nil
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return Frame{}, io.EOF
}

// DecodeFrame decodes one JSON frame.
func DecodeFrame(data []byte) (Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if wf.TimestampMs == nil {
		return Frame{}, errors.New("decode frame: missing timestamp_ms")
	}

	f := Frame{
		Timestamp:  timeutil.FromMillis(*wf.TimestampMs),
		Candidates: make([]fiducial.Candidate, 0, len(wf.Candidates)),
	}
	for i, wc := range wf.Candidates {
		c, err := wc.candidate()
		if err != nil {
			monitoring.Debugf("[ingest] frame %d candidate %d dropped: %v", *wf.TimestampMs, i, err)
			f.Rejected++
			continue
		}
		f.Candidates = append(f.Candidates, c)
	}
	return f, nil
}

func (wc wireCandidate) candidate() (fiducial.Candidate, error) {
	if len(wc.Corners) != 4 {
		return fiducial.Candidate{}, fmt.Errorf("%w: got %d", ErrCornerCount, len(wc.Corners))
	}
	var corners [4]image.Point
	for i, p := range wc.Corners {
		pt, err := roundCorner(p)
		if err != nil {
			return fiducial.Candidate{}, fmt.Errorf("corner %d: %w", i, err)
		}
		corners[i] = pt
	}
	corners, err := NormalizeWinding(corners)
	if err != nil {
		return fiducial.Candidate{}, err
	}

	c := fiducial.Candidate{Orientation: wc.Orientation}
	c.Corners = corners
	if wc.Centroid != nil {
		c.Centroid = r2.Vec{X: wc.Centroid[0], Y: wc.Centroid[1]}
	} else {
		c.Centroid = cornerCentroid(corners)
	}
	if wc.Area != nil {
		c.Area = *wc.Area
	} else {
		c.Area = math.Abs(geometry.SignedArea(corners[:]))
	}
	return c, nil
}

// roundCorner snaps a sub-pixel detector corner to the nearest pixel.
func roundCorner(p [2]float64) (image.Point, error) {
	x, y := math.Round(p[0]), math.Round(p[1])
	if math.Abs(x) > maxCoordinate || math.Abs(y) > maxCoordinate {
		return image.Point{}, fmt.Errorf("%w: (%g, %g)", ErrCornerRange, p[0], p[1])
	}
	return image.Point{X: int(x), Y: int(y)}, nil
}

// FrameHandler observes each replayed frame and the tracker's result.
type FrameHandler func(Frame, fiducial.FrameResult) error

// Replay feeds every frame from r through tracker until the stream ends,
// ctx is cancelled, or handle returns an error. It returns the number of
// frames processed.
func Replay(ctx context.Context, r *Reader, tracker *fiducial.Tracker, handle FrameHandler) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		res := tracker.Update(f.Candidates, f.Timestamp)
		n++
		if handle != nil {
			if err := handle(f, res); err != nil {
				return n, err
			}
		}
	}
}
