// Package orchestrator runs a scoring session: the per-frame sampling loop,
// the background audio estimator and the delivery of finalized results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/maastricht-university/amusement-pipeline/audio"
	cfg "github.com/maastricht-university/amusement-pipeline/config"
	"github.com/maastricht-university/amusement-pipeline/features"
	"github.com/maastricht-university/amusement-pipeline/metrics"
	"github.com/maastricht-university/amusement-pipeline/samplelog"
	"github.com/maastricht-university/amusement-pipeline/scoring"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxFrameFailures consecutive non-EOF frame errors end the session.
const maxFrameFailures = 50

// Deps are the collaborators of one session. Frames and Status are
// required; everything else is optional.
type Deps struct {
	Frames  FrameSource
	Status  StatusSource
	Catalog session.Catalog

	// Estimator and Audio go together. Without them the audio score is 0.
	Estimator *audio.Estimator
	Audio     audio.Source

	Sinks     []NamedSink
	SampleLog *samplelog.Writer
	Live      LiveFeed

	// Background tasks share the session's lifetime, e.g. the status server.
	Background []func(ctx context.Context) error

	Metrics *metrics.Collectors
	Log     logrus.FieldLogger
	Now     func() time.Time
}

type Pipeline struct {
	cfg *cfg.Root
	d   Deps
	log logrus.FieldLogger

	extractor *features.Extractor
	smooth    smoothers
	scorer    *scoring.Scorer
	cell      *audio.ScoreCell
	agg       *session.Aggregator

	frameFailures int
	acquired      int
}

func NewPipeline(c *cfg.Root, experimentID int64, d Deps) (*Pipeline, error) {
	if d.Frames == nil || d.Status == nil {
		return nil, errors.New("pipeline needs a frame source and a status source")
	}
	w, err := c.Weights()
	if err != nil {
		return nil, err
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	log := d.Log.WithField("experiment_id", experimentID)

	cell := audio.NewScoreCell()
	if d.Estimator != nil {
		cell = d.Estimator.Cell()
	}
	return &Pipeline{
		cfg:       c,
		d:         d,
		log:       log,
		extractor: features.NewExtractor(c.Features.BaselineFrames),
		smooth:    newSmoothers(c.Smoothing.Alpha),
		scorer:    scoring.NewScorer(w),
		cell:      cell,
		agg:       session.NewAggregator(experimentID, d.Catalog, d.Log),
	}, nil
}

// Run drives the session until the frame source ends, the player reports
// the playlist finished, or ctx is cancelled. The session is finalized and
// its results delivered exactly once, also when Run fails. A frame source
// that ends before its first frame is an ErrFrameSourceUnavailable failure.
func (p *Pipeline) Run(ctx context.Context) (*session.SessionResult, error) {
	if p.d.Audio != nil && p.d.Estimator != nil {
		if err := p.d.Audio.Start(p.d.Estimator.Ingest); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
		}
		defer func() {
			if err := p.d.Audio.Close(); err != nil {
				p.log.WithError(err).Warn("closing audio source")
			}
		}()
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	if p.d.Estimator != nil {
		g.Go(func() error { return p.d.Estimator.Run(gctx) })
	}
	for _, task := range p.d.Background {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		defer stop()
		return p.loop(gctx)
	})

	err := g.Wait()
	res := p.Finish(context.WithoutCancel(ctx))
	return res, err
}

func (p *Pipeline) loop(ctx context.Context) error {
	p.log.Info("sampling loop started")
	for {
		if ctx.Err() != nil {
			p.log.Info("sampling loop stopped")
			return nil
		}
		fr, err := p.d.Frames.Next(ctx)
		switch {
		case err == nil:
			p.frameFailures = 0
			p.acquired++
		case errors.Is(err, ErrFrameSourceUnavailable):
			return err
		case errors.Is(err, io.EOF):
			if p.acquired == 0 {
				return fmt.Errorf("%w: stream ended before the first frame", ErrFrameSourceUnavailable)
			}
			p.log.WithField("frames", p.acquired).Info("frame source exhausted")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			p.frameFailures++
			if p.frameFailures >= maxFrameFailures {
				return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrFrameSourceUnavailable, p.frameFailures, err)
			}
			entry := p.log.WithError(err).WithField("failures", p.frameFailures)
			if p.frameFailures == 1 {
				entry.Warn("frame acquisition failed")
			} else {
				entry.Debug("frame acquisition failed")
			}
			continue
		}

		st := p.d.Status.Status()
		p.Process(ctx, fr, st)
		if st.Finished {
			p.log.Info("playlist finished")
			return nil
		}
	}
}

// Process runs one frame through extraction, smoothing, fusion and
// aggregation.
func (p *Pipeline) Process(ctx context.Context, fr Frame, st session.Status) Sample {
	var aus features.AUs
	face := fr.FaceFound()
	if face {
		var err error
		aus, err = p.extractor.Update(fr.Landmarks, fr.Width, fr.Height)
		if err != nil {
			p.log.WithError(err).Debug("landmarks unusable, frame treated as no face")
			face = false
		}
	}

	in := p.smooth.update(aus, p.cell.Load())
	sc := p.scorer.Compute(in)
	p.d.Metrics.ObserveFrame(face, sc.Amusement)

	if seg := p.agg.Observe(ctx, st, sc.Amusement); seg != nil {
		p.emitSegment(ctx, *seg)
	}

	s := Sample{
		Time:      p.d.Now(),
		VideoID:   st.VideoID,
		Playing:   st.Playing,
		FaceFound: face,
		Inputs:    in,
		Scores:    sc,
	}
	if st.Playing {
		p.record(s)
	}
	return s
}

func (p *Pipeline) record(s Sample) {
	if p.d.SampleLog != nil {
		_, err := p.d.SampleLog.Write(samplelog.Record{
			Time:      s.Time,
			VideoID:   s.VideoID,
			AU25:      s.Inputs.AU25,
			AU12:      s.Inputs.AU12,
			AU6:       s.Inputs.AU6,
			Audio:     s.Inputs.Audio,
			Smile:     s.Scores.Smile,
			Laughter:  s.Scores.Laughter,
			Amusement: s.Scores.Amusement,
		})
		if err != nil {
			p.log.WithError(err).Warn("sample log write failed")
		}
	}
	if p.d.Live != nil {
		p.d.Live.Publish(s)
	}
}

// Finish closes the session and delivers the last segment and the session
// total. Later calls return nil.
func (p *Pipeline) Finish(ctx context.Context) *session.SessionResult {
	last, res := p.agg.Close()
	if last != nil {
		p.emitSegment(ctx, *last)
	}
	if res == nil {
		return nil
	}
	for _, s := range p.d.Sinks {
		if err := s.Sink.SaveSession(ctx, *res); err != nil {
			p.sinkFailed(s.Name, err)
		}
	}
	return res
}

func (p *Pipeline) emitSegment(ctx context.Context, seg session.SegmentResult) {
	p.d.Metrics.SegmentFinalized()
	for _, s := range p.d.Sinks {
		if err := s.Sink.SaveSegment(ctx, seg); err != nil {
			p.sinkFailed(s.Name, err)
		}
	}
}

func (p *Pipeline) sinkFailed(name string, err error) {
	p.d.Metrics.SinkFailed(name)
	p.log.WithError(err).WithField("sink", name).Error("result sink failed")
}
