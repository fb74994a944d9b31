package monitor

import (
	"fmt"
	"image/color"
	"io"

	sqlite "github.com/banshee-data/fiducial-tracker/internal/fiducial/storage/sqlite"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// maxLegendEntries caps the legend; further markers are drawn unlabelled.
const maxLegendEntries = 24

// TrackPlotter renders marker centroid trajectories from the event log.
type TrackPlotter struct {
	Width  vg.Length
	Height vg.Length
}

// NewTrackPlotter returns a plotter sized for a 4:3 camera frame.
func NewTrackPlotter() *TrackPlotter {
	return &TrackPlotter{Width: 10 * vg.Inch, Height: 7.5 * vg.Inch}
}

// Plot builds one line per trajectory with a dot at its first position.
// The y axis is inverted to match image coordinates.
func (tp *TrackPlotter) Plot(title string, trajectories []sqlite.Trajectory) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	colors := generateColors(len(trajectories))
	for i, tr := range trajectories {
		if len(tr.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(tr.Points))
		for j, v := range tr.Points {
			pts[j] = plotter.XY{X: v.X, Y: v.Y}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", tr.MarkerID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)

		start, err := plotter.NewScatter(pts[:1])
		if err != nil {
			return nil, fmt.Errorf("marker %d: %w", tr.MarkerID, err)
		}
		start.GlyphStyle.Color = colors[i]
		start.GlyphStyle.Shape = draw.CircleGlyph{}
		start.GlyphStyle.Radius = vg.Points(3)

		p.Add(line, start)
		if i < maxLegendEntries {
			p.Legend.Add(fmt.Sprintf("marker %d", tr.MarkerID), line)
		}
	}
	return p, nil
}

// Render writes the trajectories as a PNG to w.
func (tp *TrackPlotter) Render(w io.Writer, title string, trajectories []sqlite.Trajectory) error {
	p, err := tp.Plot(title, trajectories)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(tp.Width, tp.Height, "png")
	if err != nil {
		return fmt.Errorf("create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// Save writes the trajectories to path; the format follows the extension.
func (tp *TrackPlotter) Save(path, title string, trajectories []sqlite.Trajectory) error {
	p, err := tp.Plot(title, trajectories)
	if err != nil {
		return err
	}
	if err := p.Save(tp.Width, tp.Height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// generateColors returns n distinct colours spread around the hue wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 0.5:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
