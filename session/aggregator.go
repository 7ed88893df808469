// Package session segments the amusement stream by the video that is
// playing and reduces it to per-video means and a session total.
package session

import (
	"context"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Status is the presentation layer's report for one frame.
type Status struct {
	VideoID  string  `json:"video_id"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
	Finished bool    `json:"finished"`
}

// Catalog answers whether a video id is real, approved content.
type Catalog interface {
	VideoIsKnownAndApproved(ctx context.Context, id string) (bool, error)
}

type CatalogFunc func(ctx context.Context, id string) (bool, error)

func (f CatalogFunc) VideoIsKnownAndApproved(ctx context.Context, id string) (bool, error) {
	return f(ctx, id)
}

type SegmentResult struct {
	ExperimentID int64   `json:"experiment_id"`
	VideoID      string  `json:"video_id"`
	Position     int     `json:"position"` // 0-based order of the segment in the session
	Mean         float64 `json:"mean_amusement_score"`
	Samples      int     `json:"samples"`
}

type SessionResult struct {
	ExperimentID int64           `json:"experiment_id"`
	Total        float64         `json:"total_amusement_score"`
	Samples      int             `json:"samples"`
	Segments     []SegmentResult `json:"segments"`
}

type segment struct {
	videoID   string
	position  int
	samples   []float64
	finalized bool
}

// Aggregator is a state machine over the reported current video. With no
// open segment it is in NoActiveVideo; otherwise in ActiveVideo(id). Only
// playing samples drive it. Not safe for concurrent use.
type Aggregator struct {
	experimentID int64
	catalog      Catalog
	log          logrus.FieldLogger

	known    map[string]bool
	active   *segment
	opened   int
	all      []float64
	segments []SegmentResult
	closed   bool
}

func NewAggregator(experimentID int64, c Catalog, log logrus.FieldLogger) *Aggregator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Aggregator{
		experimentID: experimentID,
		catalog:      c,
		log:          log.WithField("experiment_id", experimentID),
		known:        map[string]bool{},
	}
}

// ActiveVideo returns the id of the open segment, or "" in NoActiveVideo.
func (a *Aggregator) ActiveVideo() string {
	if a.active == nil {
		return ""
	}
	return a.active.videoID
}

// Observe feeds one frame's amusement score. Paused frames are ignored.
// Frames on unknown ids count toward the session total only. When the frame
// moves to a different known id the open segment is finalized and returned.
func (a *Aggregator) Observe(ctx context.Context, st Status, amusement float64) *SegmentResult {
	if a.closed || !st.Playing {
		return nil
	}
	a.all = append(a.all, amusement)

	if !a.isKnown(ctx, st.VideoID) {
		return nil
	}
	closed := a.enter(st.VideoID)
	a.active.samples = append(a.active.samples, amusement)
	return closed
}

// Close finalizes the open segment and computes the session total. Only the
// first call returns results.
func (a *Aggregator) Close() (*SegmentResult, *SessionResult) {
	if a.closed {
		return nil, nil
	}
	a.closed = true
	last := a.finalize()

	total := 0.0
	if len(a.all) > 0 {
		total = stat.Mean(a.all, nil)
	}
	res := &SessionResult{
		ExperimentID: a.experimentID,
		Total:        total,
		Samples:      len(a.all),
		Segments:     append([]SegmentResult(nil), a.segments...),
	}
	a.log.WithFields(logrus.Fields{
		"total":    res.Total,
		"samples":  res.Samples,
		"segments": len(res.Segments),
	}).Info("session finalized")
	return last, res
}

// enter moves to ActiveVideo(id), finalizing whatever was open before.
func (a *Aggregator) enter(id string) *SegmentResult {
	if a.active != nil && a.active.videoID == id {
		return nil
	}
	closed := a.finalize()
	a.active = &segment{videoID: id, position: a.opened}
	a.opened++
	a.log.WithFields(logrus.Fields{"video_id": id, "segment": a.active.position}).Debug("segment opened")
	return closed
}

// finalize closes the open segment, emitting its mean at most once.
func (a *Aggregator) finalize() *SegmentResult {
	seg := a.active
	a.active = nil
	if seg == nil || seg.finalized || len(seg.samples) == 0 {
		return nil
	}
	seg.finalized = true
	res := SegmentResult{
		ExperimentID: a.experimentID,
		VideoID:      seg.videoID,
		Position:     seg.position,
		Mean:         stat.Mean(seg.samples, nil),
		Samples:      len(seg.samples),
	}
	a.segments = append(a.segments, res)
	a.log.WithFields(logrus.Fields{
		"video_id": res.VideoID,
		"segment":  res.Position,
		"mean":     res.Mean,
		"samples":  res.Samples,
	}).Info("segment finalized")
	return &res
}

func (a *Aggregator) isKnown(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	if a.known[id] {
		return true
	}
	if a.catalog == nil {
		return false
	}
	ok, err := a.catalog.VideoIsKnownAndApproved(ctx, id)
	if err != nil {
		a.log.WithError(err).WithField("video_id", id).Warn("catalog lookup failed, treating video as unknown")
		return false
	}
	if !ok {
		// not cached: the video may be approved while the session runs
		a.log.WithField("video_id", id).Debug("video not in catalog, excluded from segmentation")
		return false
	}
	a.known[id] = true
	return true
}
