package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/maastricht-university/amusement-pipeline/clients"
	"github.com/maastricht-university/amusement-pipeline/session"
)

// LandmarkSource pulls frames from the landmark service.
type LandmarkSource struct {
	http    *clients.HTTP
	url     string
	started bool
}

func NewLandmarkSource(h *clients.HTTP, url string) *LandmarkSource {
	return &LandmarkSource{http: h, url: url}
}

// Next fails with ErrFrameSourceUnavailable when the very first request
// does not return a frame, including a stream that is already over.
func (s *LandmarkSource) Next(ctx context.Context) (Frame, error) {
	lf, err := s.http.NextFrame(ctx, s.url)
	if err != nil {
		if !s.started && ctx.Err() == nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrFrameSourceUnavailable, err)
		}
		return Frame{}, err
	}
	s.started = true
	return toFrame(lf), nil
}

// replayLine is one JSON-lines record. The playback fields are optional.
type replayLine struct {
	clients.LandmarkFrame
	VideoID  *string  `json:"video_id,omitempty"`
	Playing  *bool    `json:"playing,omitempty"`
	Position *float64 `json:"position,omitempty"`
	Finished bool     `json:"finished,omitempty"`
}

// ReplaySource replays recorded frames from JSON lines. When the lines
// carry playback fields it doubles as the StatusSource for the frame it
// last returned.
type ReplaySource struct {
	dec      *json.Decoder
	closer   io.Closer
	interval time.Duration

	mu     sync.RWMutex
	status session.Status
}

type ReplayOption func(*ReplaySource)

// ReplayInterval paces frames as if they were captured live.
func ReplayInterval(d time.Duration) ReplayOption {
	return func(s *ReplaySource) { s.interval = d }
}

func NewReplaySource(r io.Reader, opts ...ReplayOption) *ReplaySource {
	s := &ReplaySource{dec: json.NewDecoder(bufio.NewReader(r))}
	for _, o := range opts {
		o(s)
	}
	return s
}

func OpenReplay(path string, opts ...ReplayOption) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameSourceUnavailable, err)
	}
	s := NewReplaySource(f, opts...)
	s.closer = f
	return s, nil
}

func (s *ReplaySource) Next(ctx context.Context) (Frame, error) {
	if s.interval > 0 {
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Frame{}, ctx.Err()
		case <-t.C:
		}
	}
	var line replayLine
	if err := s.dec.Decode(&line); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("replay decode: %w", err)
	}
	if line.EOS {
		return Frame{}, io.EOF
	}

	s.mu.Lock()
	if line.VideoID != nil {
		s.status.VideoID = *line.VideoID
	}
	if line.Playing != nil {
		s.status.Playing = *line.Playing
	}
	if line.Position != nil {
		s.status.Position = *line.Position
	}
	s.status.Finished = s.status.Finished || line.Finished
	s.mu.Unlock()

	return toFrame(&line.LandmarkFrame), nil
}

func (s *ReplaySource) Status() session.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *ReplaySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ReplayWriter records frames, with the playback status at the time, in
// the format ReplaySource reads.
type ReplayWriter struct {
	enc *json.Encoder
}

func NewReplayWriter(w io.Writer) *ReplayWriter {
	return &ReplayWriter{enc: json.NewEncoder(w)}
}

func (w *ReplayWriter) Write(f Frame, st session.Status) error {
	line := replayLine{
		LandmarkFrame: toLandmarkFrame(f),
		VideoID:       &st.VideoID,
		Playing:       &st.Playing,
		Position:      &st.Position,
		Finished:      st.Finished,
	}
	return w.enc.Encode(line)
}

// recordingSource tees every frame and the status at that moment into a
// ReplayWriter.
type recordingSource struct {
	FrameSource
	status StatusSource
	w      *ReplayWriter
}

// Recording wraps src so each frame is also written to w.
func Recording(src FrameSource, status StatusSource, w *ReplayWriter) FrameSource {
	return &recordingSource{FrameSource: src, status: status, w: w}
}

func (r *recordingSource) Next(ctx context.Context) (Frame, error) {
	f, err := r.FrameSource.Next(ctx)
	if err != nil {
		return f, err
	}
	if werr := r.w.Write(f, r.status.Status()); werr != nil {
		return f, fmt.Errorf("record frame: %w", werr)
	}
	return f, nil
}
