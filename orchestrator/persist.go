package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maastricht-university/amusement-pipeline/session"
)

// PersistBundle is the session.json written at the end of a run.
type PersistBundle struct {
	RunID        string                  `json:"run_id"`
	ExperimentID int64                   `json:"experiment_id"`
	GeneratedAt  time.Time               `json:"generated_at"`
	Playlist     []string                `json:"playlist,omitempty"`
	Segments     []session.SegmentResult `json:"segments"`
	Total        float64                 `json:"total_amusement_score"`
	Samples      int                     `json:"samples"`
}

func mkSessionDir(outputsRoot, runID string) (string, error) {
	dir := filepath.Join(outputsRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// BundleSink collects segments and writes <outputs>/<run id>/session.json
// when the session result arrives.
type BundleSink struct {
	outputsRoot string
	runID       string
	playlist    []string
	now         func() time.Time

	mu       sync.Mutex
	segments []session.SegmentResult
	path     string
}

func NewBundleSink(outputsRoot, runID string, playlist []string) *BundleSink {
	return &BundleSink{outputsRoot: outputsRoot, runID: runID, playlist: playlist, now: time.Now}
}

func (b *BundleSink) SaveSegment(_ context.Context, r session.SegmentResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = append(b.segments, r)
	return nil
}

func (b *BundleSink) SaveSession(_ context.Context, r session.SessionResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir, err := mkSessionDir(b.outputsRoot, b.runID)
	if err != nil {
		return err
	}
	segs := b.segments
	if segs == nil {
		segs = []session.SegmentResult{}
	}
	bundle := PersistBundle{
		RunID:        b.runID,
		ExperimentID: r.ExperimentID,
		GeneratedAt:  b.now(),
		Playlist:     b.playlist,
		Segments:     segs,
		Total:        r.Total,
		Samples:      r.Samples,
	}
	path := filepath.Join(dir, "session.json")
	if err := writeJSON(path, bundle); err != nil {
		return err
	}
	b.path = path
	return nil
}

// Path is where the bundle was written, or "" before the session ended.
func (b *BundleSink) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}
