package orchestrator

import (
	"context"
	"time"

	"github.com/maastricht-university/amusement-pipeline/clients"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/maastricht-university/amusement-pipeline/storage"
)

// StoreSink writes results into the experiment tables.
type StoreSink struct {
	store *storage.Store
	now   func() time.Time
}

func NewStoreSink(s *storage.Store) *StoreSink {
	return &StoreSink{store: s, now: time.Now}
}

func (s *StoreSink) SaveSegment(ctx context.Context, r session.SegmentResult) error {
	return s.store.SaveVideoScore(ctx, r.ExperimentID, r.VideoID, r.Position, r.Mean, r.Samples)
}

func (s *StoreSink) SaveSession(ctx context.Context, r session.SessionResult) error {
	return s.store.FinalizeExperiment(ctx, r.ExperimentID, r.Total, s.now())
}

// TimelineSink asks the visualization service to render the session's
// per-video means once the session ends.
type TimelineSink struct {
	http      *clients.HTTP
	url       string
	runID     string
	outputDir string
}

func NewTimelineSink(h *clients.HTTP, url, runID, outputDir string) *TimelineSink {
	return &TimelineSink{http: h, url: url, runID: runID, outputDir: outputDir}
}

func (t *TimelineSink) SaveSegment(context.Context, session.SegmentResult) error { return nil }

func (t *TimelineSink) SaveSession(ctx context.Context, r session.SessionResult) error {
	req := clients.TimelineReq{
		RunID:        t.runID,
		ExperimentID: r.ExperimentID,
		Total:        r.Total,
		OutputDir:    t.outputDir,
		VideoIDs:     make([]string, 0, len(r.Segments)),
		Scores:       make([]float64, 0, len(r.Segments)),
	}
	for _, s := range r.Segments {
		req.VideoIDs = append(req.VideoIDs, s.VideoID)
		req.Scores = append(req.Scores, s.Mean)
	}
	_, err := t.http.GenerateTimeline(ctx, t.url, req)
	return err
}
