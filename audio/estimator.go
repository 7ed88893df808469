package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/amusement-pipeline/metrics"
)

var (
	ErrEmptyWindow     = errors.New("no audio ingested yet")
	ErrMalformedScores = errors.New("malformed classifier output")
)

// Classifier scores a fixed-length waveform and returns per-class
// probabilities.
type Classifier interface {
	Classify(ctx context.Context, window []float32) ([]float32, error)
}

type ClassifierFunc func(ctx context.Context, window []float32) ([]float32, error)

func (f ClassifierFunc) Classify(ctx context.Context, window []float32) ([]float32, error) {
	return f(ctx, window)
}

// Source delivers mono samples asynchronously to the callback until closed.
// Start fails when the device cannot be opened.
type Source interface {
	Start(onSamples func(samples []float32)) error
	Close() error
}

// SilentSource never delivers samples.
type SilentSource struct{}

func (SilentSource) Start(func([]float32)) error { return nil }
func (SilentSource) Close() error                { return nil }

type EstimatorConfig struct {
	WindowLength    int
	Period          time.Duration
	LaughterClasses []int
}

// Estimator owns the rolling window and periodically publishes a laughter
// score in [0,1] to its ScoreCell. A failed classification keeps the
// previously published score.
type Estimator struct {
	cfg        EstimatorConfig
	window     *Window
	cell       *ScoreCell
	classifier Classifier
	log        logrus.FieldLogger
	metrics    *metrics.Collectors

	scratch  []float32
	failures int
}

func NewEstimator(cfg EstimatorConfig, c Classifier, cell *ScoreCell, log logrus.FieldLogger, m *metrics.Collectors) *Estimator {
	if cell == nil {
		cell = NewScoreCell()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Estimator{
		cfg:        cfg,
		window:     NewWindow(cfg.WindowLength),
		cell:       cell,
		classifier: c,
		log:        log.WithField("component", "audio"),
		metrics:    m,
	}
}

func (e *Estimator) Cell() *ScoreCell { return e.cell }
func (e *Estimator) Window() *Window  { return e.window }

// Ingest is the audio callback. It only touches the window.
func (e *Estimator) Ingest(samples []float32) { e.window.Ingest(samples) }

// Run classifies the window every Period until ctx is cancelled. An
// in-flight classification is allowed to finish before the loop exits.
func (e *Estimator) Run(ctx context.Context) error {
	t := time.NewTicker(e.cfg.Period)
	defer t.Stop()

	e.log.WithFields(logrus.Fields{
		"period":  e.cfg.Period,
		"window":  e.cfg.WindowLength,
		"classes": e.cfg.LaughterClasses,
	}).Info("laughter estimator started")

	for {
		select {
		case <-ctx.Done():
			e.log.Info("laughter estimator stopped")
			return nil
		case <-t.C:
			_, _ = e.Step(context.WithoutCancel(ctx))
		}
	}
}

// Step runs one classification and publishes its score. On failure the cell
// keeps its previous value and the error is returned for the caller's
// information only.
func (e *Estimator) Step(ctx context.Context) (float64, error) {
	score, err := e.classify(ctx)
	if err != nil {
		e.failures++
		e.metrics.ClassifyFailed(reason(err))
		entry := e.log.WithError(err).WithField("consecutive", e.failures)
		if e.failures == 1 {
			entry.Warn("classification failed, keeping previous laughter score")
		} else {
			entry.Debug("classification failed")
		}
		return e.cell.Load(), err
	}
	if e.failures > 0 {
		e.log.WithField("after", e.failures).Info("classification recovered")
		e.failures = 0
	}
	e.cell.Store(score)
	return score, nil
}

func (e *Estimator) classify(ctx context.Context) (float64, error) {
	if e.window.Filled() == 0 {
		return 0, ErrEmptyWindow
	}
	e.scratch = e.window.Snapshot(e.scratch)

	start := time.Now()
	probs, err := e.classifier.Classify(ctx, e.scratch)
	if err != nil {
		return 0, fmt.Errorf("classify: %w", err)
	}
	score, err := LaughterScore(probs, e.cfg.LaughterClasses)
	if err != nil {
		return 0, err
	}
	e.metrics.ObserveClassify(time.Since(start), score)
	return score, nil
}

// LaughterScore sums the probability mass of the given class indices and
// clamps it to [0,1].
func LaughterScore(probs []float32, classes []int) (float64, error) {
	if len(probs) == 0 {
		return 0, fmt.Errorf("%w: empty score vector", ErrMalformedScores)
	}
	sum := 0.0
	for _, c := range classes {
		if c < 0 || c >= len(probs) {
			return 0, fmt.Errorf("%w: class %d outside %d scores", ErrMalformedScores, c, len(probs))
		}
		p := float64(probs[c])
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, fmt.Errorf("%w: class %d is %v", ErrMalformedScores, c, p)
		}
		sum += p
	}
	return math.Max(0, math.Min(sum, 1)), nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyWindow):
		return "empty_window"
	case errors.Is(err, ErrMalformedScores):
		return "malformed"
	default:
		return "classifier"
	}
}
