package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/maastricht-university/amusement-pipeline/features"
	"github.com/maastricht-university/amusement-pipeline/scoring"
	"github.com/maastricht-university/amusement-pipeline/session"
)

// ErrFrameSourceUnavailable is fatal: the session cannot be scored.
var ErrFrameSourceUnavailable = errors.New("frame source unavailable")

// ErrAudioUnavailable is returned when the audio source fails to start.
var ErrAudioUnavailable = errors.New("audio source unavailable")

// Frame is one acquired video frame. Landmarks is nil when no face was
// detected.
type Frame struct {
	Width     int
	Height    int
	Landmarks features.Landmarks
}

func (f Frame) FaceFound() bool { return f.Landmarks != nil }

// FrameSource yields frames until it returns io.EOF.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// StatusSource is polled once per frame for the player's state.
type StatusSource interface {
	Status() session.Status
}

type StatusFunc func() session.Status

func (f StatusFunc) Status() session.Status { return f() }

// ResultSink receives every finalized result exactly once.
type ResultSink interface {
	SaveSegment(ctx context.Context, r session.SegmentResult) error
	SaveSession(ctx context.Context, r session.SessionResult) error
}

type NamedSink struct {
	Name string
	Sink ResultSink
}

// LiveFeed receives every scored sample while the video plays.
type LiveFeed interface {
	Publish(v any)
}

// Sample is the outcome of processing one frame.
type Sample struct {
	Time      time.Time      `json:"time"`
	VideoID   string         `json:"video_id"`
	Playing   bool           `json:"playing"`
	FaceFound bool           `json:"face_found"`
	Inputs    scoring.Inputs `json:"inputs"`
	Scores    scoring.Scores `json:"scores"`
}
