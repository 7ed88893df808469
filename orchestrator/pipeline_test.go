package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maastricht-university/amusement-pipeline/audio"
	"github.com/maastricht-university/amusement-pipeline/config"
	"github.com/maastricht-university/amusement-pipeline/features"
	"github.com/maastricht-university/amusement-pipeline/metrics"
	"github.com/maastricht-university/amusement-pipeline/samplelog"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	neutral = features.FaceShape{MouthOpen: 0, MouthWidth: 0.2, EyeOpening: 0.3}
	smiling = features.FaceShape{MouthOpen: 0.05, MouthWidth: 0.26, EyeOpening: 0.2}
)

func face(s features.FaceShape) Frame {
	return Frame{Width: 100, Height: 100, Landmarks: features.Synthetic(s)}
}

// sliceSource replays frames and then io.EOF.
type sliceSource struct {
	frames []Frame
	errs   []error
	i      int
}

func (s *sliceSource) Next(ctx context.Context) (Frame, error) {
	if s.i < len(s.errs) && s.errs[s.i] != nil {
		err := s.errs[s.i]
		s.i++
		return Frame{}, err
	}
	if s.i >= len(s.frames) {
		return Frame{}, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

type recordingSink struct {
	mu       sync.Mutex
	segments []session.SegmentResult
	sessions []session.SessionResult
	err      error
}

func (r *recordingSink) SaveSegment(_ context.Context, s session.SegmentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, s)
	return r.err
}

func (r *recordingSink) SaveSession(_ context.Context, s session.SessionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
	return r.err
}

func knownCatalog(ids ...string) session.Catalog {
	return session.CatalogFunc(func(_ context.Context, id string) (bool, error) {
		for _, k := range ids {
			if k == id {
				return true, nil
			}
		}
		return false, nil
	})
}

func playing(id string) StatusSource {
	return StatusFunc(func() session.Status { return session.Status{VideoID: id, Playing: true} })
}

func testConfig() *config.Root {
	c := config.Default()
	return &c
}

func TestWarmUpThenSmile(t *testing.T) {
	var frames []Frame
	for i := 0; i < 60; i++ {
		frames = append(frames, face(neutral))
	}
	for i := 0; i < 30; i++ {
		frames = append(frames, face(smiling))
	}

	l, _ := test.NewNullLogger()
	p, err := NewPipeline(testConfig(), 1, Deps{
		Frames:  &sliceSource{frames: frames},
		Status:  playing("A"),
		Catalog: knownCatalog("A"),
		Log:     l,
	})
	require.NoError(t, err)

	ctx := context.Background()
	var amusement []float64
	for _, f := range frames {
		amusement = append(amusement, p.Process(ctx, f, session.Status{VideoID: "A", Playing: true}).Scores.Amusement)
	}

	for i := 0; i < 60; i++ {
		assert.InDelta(t, 0, amusement[i], 1e-9, "warm-up frame %d", i)
	}
	for i := 60; i < 90; i++ {
		assert.Greater(t, amusement[i], amusement[i-1], "frame %d should rise", i)
	}
	// after thirty frames at alpha 0.3 the smoother is within 0.7^30 of target
	final := amusement[89]
	assert.Greater(t, final, 0.1)
	assert.Less(t, amusement[89]-amusement[88], 1e-3*final)
	assert.Less(t, amusement[89]-amusement[85], 1e-2*final)

	res := p.Finish(ctx)
	require.NotNil(t, res)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 90, res.Samples)
	assert.Nil(t, p.Finish(ctx))
}

func TestRunDeliversResultsToEverySinkOnce(t *testing.T) {
	frames := make([]Frame, 0, 12)
	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		frames = append(frames, face(neutral))
		switch {
		case i < 5:
			ids = append(ids, "A")
		case i < 8:
			ids = append(ids, "B")
		default:
			ids = append(ids, "A")
		}
	}
	src := &sliceSource{frames: frames}
	status := StatusFunc(func() session.Status {
		return session.Status{VideoID: ids[src.i-1], Playing: true}
	})

	first, second := &recordingSink{}, &recordingSink{err: errors.New("broker down")}
	m := metrics.New()
	l, _ := test.NewNullLogger()
	p, err := NewPipeline(testConfig(), 9, Deps{
		Frames:  src,
		Status:  status,
		Catalog: knownCatalog("A", "B"),
		Sinks:   []NamedSink{{"store", first}, {"amqp", second}},
		Metrics: m,
		Log:     l,
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	for _, s := range []*recordingSink{first, second} {
		require.Len(t, s.segments, 3)
		assert.Equal(t, []string{"A", "B", "A"}, []string{s.segments[0].VideoID, s.segments[1].VideoID, s.segments[2].VideoID})
		assert.Equal(t, []int{5, 3, 4}, []int{s.segments[0].Samples, s.segments[1].Samples, s.segments[2].Samples})
		require.Len(t, s.sessions, 1)
		assert.Equal(t, int64(9), s.sessions[0].ExperimentID)
		assert.Equal(t, 12, s.sessions[0].Samples)
	}
	if diff := cmp.Diff(first.segments, res.Segments); diff != "" {
		t.Fatalf("segments (-sink +result):\n%s", diff)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SegmentsFinalized))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("amqp")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.Frames))
}

func TestRunStopsWhenPlaylistFinishes(t *testing.T) {
	frames := make([]Frame, 20)
	for i := range frames {
		frames[i] = face(neutral)
	}
	src := &sliceSource{frames: frames}
	status := StatusFunc(func() session.Status {
		return session.Status{VideoID: "A", Playing: true, Finished: src.i >= 7}
	})
	l, _ := test.NewNullLogger()
	p, err := NewPipeline(testConfig(), 1, Deps{Frames: src, Status: status, Catalog: knownCatalog("A"), Log: l})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, src.i)
	assert.Equal(t, 7, res.Samples)
}

func TestNoFaceAndPausedFrames(t *testing.T) {
	l, _ := test.NewNullLogger()
	var buf bytes.Buffer
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)
	slog, err := samplelog.NewWriter(&buf, "run", start, 0)
	require.NoError(t, err)

	now := start
	p, err := NewPipeline(testConfig(), 1, Deps{
		Frames:    &sliceSource{},
		Status:    playing("A"),
		Catalog:   knownCatalog("A"),
		SampleLog: slog,
		Log:       l,
		Now:       func() time.Time { now = now.Add(100 * time.Millisecond); return now },
	})
	require.NoError(t, err)

	ctx := context.Background()
	s := p.Process(ctx, Frame{Width: 640, Height: 480}, session.Status{VideoID: "A", Playing: true})
	assert.False(t, s.FaceFound)
	assert.Equal(t, 0.0, s.Scores.Amusement)

	short := Frame{Width: 640, Height: 480, Landmarks: make(features.Landmarks, 10)}
	s = p.Process(ctx, short, session.Status{VideoID: "A", Playing: true})
	assert.False(t, s.FaceFound)

	p.Process(ctx, face(neutral), session.Status{VideoID: "A", Playing: false})

	log, err := samplelog.Parse(&buf)
	require.NoError(t, err)
	assert.Len(t, log.Records, 2, "paused frame is not logged")

	res := p.Finish(ctx)
	assert.Equal(t, 2, res.Samples)
}

func TestAudioScoreFlowsIntoFusion(t *testing.T) {
	l, _ := test.NewNullLogger()
	est := audio.NewEstimator(audio.EstimatorConfig{
		WindowLength:    4,
		Period:          time.Hour,
		LaughterClasses: []int{0},
	}, audio.ClassifierFunc(func(context.Context, []float32) ([]float32, error) {
		return []float32{0.5, 0.5}, nil
	}), nil, l, nil)
	est.Ingest([]float32{1, 2, 3, 4})
	_, err := est.Step(context.Background())
	require.NoError(t, err)

	p, err := NewPipeline(testConfig(), 1, Deps{
		Frames:    &sliceSource{},
		Status:    playing("A"),
		Estimator: est,
		Log:       l,
	})
	require.NoError(t, err)
	s := p.Process(context.Background(), Frame{}, session.Status{VideoID: "A", Playing: true})
	assert.Equal(t, 0.5, s.Inputs.Audio)
	assert.InDelta(t, 0.6*0.2*0.5, s.Scores.Amusement, 1e-12)
}

type failingSource struct{ err error }

func (f failingSource) Start(func([]float32)) error { return f.err }
func (f failingSource) Close() error                { return nil }

func TestRunFailsWhenAudioCannotStart(t *testing.T) {
	l, _ := test.NewNullLogger()
	est := audio.NewEstimator(audio.EstimatorConfig{WindowLength: 4, Period: time.Second}, nil, nil, l, nil)
	p, err := NewPipeline(testConfig(), 1, Deps{
		Frames:    &sliceSource{},
		Status:    playing("A"),
		Estimator: est,
		Audio:     failingSource{errors.New("no capture device")},
		Log:       l,
	})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAudioUnavailable)
}

func TestRunFrameSourceFailures(t *testing.T) {
	l, _ := test.NewNullLogger()

	// transient errors are skipped
	src := &sliceSource{frames: []Frame{face(neutral), face(neutral)}, errs: []error{errors.New("timeout")}}
	p, err := NewPipeline(testConfig(), 1, Deps{Frames: src, Status: playing("A"), Log: l})
	require.NoError(t, err)
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Samples)

	// unavailable at setup is fatal, and the session is still closed
	sink := &recordingSink{}
	src = &sliceSource{errs: []error{fmt.Errorf("%w: refused", ErrFrameSourceUnavailable)}}
	p, err = NewPipeline(testConfig(), 1, Deps{Frames: src, Status: playing("A"), Log: l, Sinks: []NamedSink{{"s", sink}}})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrFrameSourceUnavailable)
	assert.Len(t, sink.sessions, 1)

	// a stream that is over before the first frame
	empty := []FrameSource{
		&sliceSource{},
		NewReplaySource(strings.NewReader("")),
		NewReplaySource(strings.NewReader(`{"eos":true}` + "\n")),
	}
	for _, src := range empty {
		sink := &recordingSink{}
		p, err = NewPipeline(testConfig(), 1, Deps{Frames: src, Status: playing("A"), Log: l, Sinks: []NamedSink{{"s", sink}}})
		require.NoError(t, err)
		res, err := p.Run(context.Background())
		assert.ErrorIs(t, err, ErrFrameSourceUnavailable)
		require.NotNil(t, res)
		assert.Equal(t, 0, res.Samples)
		assert.Len(t, sink.sessions, 1)
	}

	// a source that never recovers
	errs := make([]error, maxFrameFailures)
	for i := range errs {
		errs[i] = errors.New("camera gone")
	}
	p, err = NewPipeline(testConfig(), 1, Deps{Frames: &sliceSource{errs: errs}, Status: playing("A"), Log: l})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrFrameSourceUnavailable)
}

type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (Frame, error) {
	<-ctx.Done()
	return Frame{}, ctx.Err()
}

func TestRunStopsBackgroundTasksOnCancel(t *testing.T) {
	l, _ := test.NewNullLogger()
	stopped := make(chan struct{})
	p, err := NewPipeline(testConfig(), 1, Deps{
		Frames: blockingSource{},
		Status: playing("A"),
		Log:    l,
		Background: []func(context.Context) error{func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	<-stopped
}

func TestNewPipelineValidates(t *testing.T) {
	_, err := NewPipeline(testConfig(), 1, Deps{Status: playing("A")})
	assert.Error(t, err)

	c := testConfig()
	c.Scoring.SmileWeights = []float64{1}
	_, err = NewPipeline(c, 1, Deps{Frames: &sliceSource{}, Status: playing("A")})
	assert.ErrorIs(t, err, config.ErrInvalid)
}
