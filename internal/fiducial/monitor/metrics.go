package monitor

import (
	"net/http"
	"time"

	"github.com/banshee-data/fiducial-tracker/internal/fiducial"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes tracker totals and per-frame processing time to
// Prometheus on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	frameDuration prometheus.Histogram
	candidates    prometheus.Histogram
}

// NewMetrics registers collectors for tracker.
func NewMetrics(tracker *fiducial.Tracker) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiducial_frame_processing_seconds",
			Help:    "Histogram of per-frame association time.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiducial_frame_candidates",
			Help:    "Histogram of candidates per frame after nested suppression.",
			Buckets: prometheus.LinearBuckets(0, 4, 10),
		}),
	}
	m.registry.MustRegister(m.frameDuration, m.candidates, newTrackerCollector(tracker))
	return m
}

// ObserveFrame records one processed frame.
func (m *Metrics) ObserveFrame(elapsed time.Duration, candidates int, res fiducial.FrameResult) {
	m.frameDuration.Observe(elapsed.Seconds())
	m.candidates.Observe(float64(candidates - len(res.Suppressed)))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// trackerCollector reads Tracker.Stats on every scrape.
type trackerCollector struct {
	tracker *fiducial.Tracker

	frames      *prometheus.Desc
	created     *prometheus.Desc
	removed     *prometheus.Desc
	reactivated *prometheus.Desc
	suppressed  *prometheus.Desc
	rejected    *prometheus.Desc
	live        *prometheus.Desc
	pending     *prometheus.Desc
}

func newTrackerCollector(t *fiducial.Tracker) *trackerCollector {
	return &trackerCollector{
		tracker:     t,
		frames:      prometheus.NewDesc("fiducial_frames_total", "Frames processed.", nil, nil),
		created:     prometheus.NewDesc("fiducial_markers_created_total", "Markers created.", nil, nil),
		removed:     prometheus.NewDesc("fiducial_markers_removed_total", "Markers evicted after the grace period.", nil, nil),
		reactivated: prometheus.NewDesc("fiducial_markers_reactivated_total", "Pending markers matched again.", nil, nil),
		suppressed:  prometheus.NewDesc("fiducial_candidates_suppressed_total", "Nested candidates dropped.", nil, nil),
		rejected:    prometheus.NewDesc("fiducial_candidates_rejected_total", "Unmatched candidates not admitted.", nil, nil),
		live:        prometheus.NewDesc("fiducial_markers_live", "Markers currently tracked.", nil, nil),
		pending:     prometheus.NewDesc("fiducial_markers_pending_removal", "Markers with a running removal timer.", nil, nil),
	}
}

func (c *trackerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frames
	ch <- c.created
	ch <- c.removed
	ch <- c.reactivated
	ch <- c.suppressed
	ch <- c.rejected
	ch <- c.live
	ch <- c.pending
}

func (c *trackerCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.tracker.Stats()
	ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.Frames))
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(c.removed, prometheus.CounterValue, float64(s.Removed))
	ch <- prometheus.MustNewConstMetric(c.reactivated, prometheus.CounterValue, float64(s.Reactivated))
	ch <- prometheus.MustNewConstMetric(c.suppressed, prometheus.CounterValue, float64(s.Suppressed))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(s.Rejected))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.Live))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(s.Pending))
}
