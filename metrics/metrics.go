// Package metrics holds the prometheus collectors for a scoring session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors is safe to use as a nil pointer; every method is then a no-op.
type Collectors struct {
	registry *prometheus.Registry

	Frames            prometheus.Counter
	FacesMissing      prometheus.Counter
	ClassifierErrors  *prometheus.CounterVec
	ClassifyLatency   prometheus.Histogram
	LaughterScore     prometheus.Gauge
	AmusementScore    prometheus.Gauge
	SegmentsFinalized prometheus.Counter
	SinkErrors        *prometheus.CounterVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amusement_frames_total",
			Help: "Frames processed by the sampling loop",
		}),
		FacesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amusement_faces_missing_total",
			Help: "Frames with no detected face",
		}),
		ClassifierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amusement_classifier_errors_total",
			Help: "Audio classifications that kept the previous score",
		}, []string{"reason"}),
		ClassifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amusement_classify_seconds",
			Help:    "Audio classifier call latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		LaughterScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amusement_laughter_score",
			Help: "Latest published audio laughter score",
		}),
		AmusementScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amusement_score",
			Help: "Latest fused amusement score",
		}),
		SegmentsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amusement_segments_finalized_total",
			Help: "Video segments finalized to a mean score",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amusement_sink_errors_total",
			Help: "Result sink write failures",
		}, []string{"sink"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		c.Frames, c.FacesMissing, c.ClassifierErrors, c.ClassifyLatency,
		c.LaughterScore, c.AmusementScore, c.SegmentsFinalized, c.SinkErrors,
	)
	return c
}

// Handler serves the collectors in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) ObserveFrame(faceFound bool, amusement float64) {
	if c == nil {
		return
	}
	c.Frames.Inc()
	if !faceFound {
		c.FacesMissing.Inc()
	}
	c.AmusementScore.Set(amusement)
}

func (c *Collectors) ObserveClassify(d time.Duration, score float64) {
	if c == nil {
		return
	}
	c.ClassifyLatency.Observe(d.Seconds())
	c.LaughterScore.Set(score)
}

func (c *Collectors) ClassifyFailed(reason string) {
	if c == nil {
		return
	}
	c.ClassifierErrors.WithLabelValues(reason).Inc()
}

func (c *Collectors) SegmentFinalized() {
	if c == nil {
		return
	}
	c.SegmentsFinalized.Inc()
}

func (c *Collectors) SinkFailed(sink string) {
	if c == nil {
		return
	}
	c.SinkErrors.WithLabelValues(sink).Inc()
}
