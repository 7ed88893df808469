package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maastricht-university/amusement-pipeline/clients"
	"github.com/maastricht-university/amusement-pipeline/session"
	"github.com/maastricht-university/amusement-pipeline/storage"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionWith(eid int64, segs ...session.SegmentResult) session.SessionResult {
	return session.SessionResult{ExperimentID: eid, Total: 0.4, Samples: 20, Segments: segs}
}

func TestBundleSinkWritesSessionJSON(t *testing.T) {
	root := t.TempDir()
	b := NewBundleSink(root, "run-1", []string{"A", "B"})
	b.now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	assert.Empty(t, b.Path())
	seg := session.SegmentResult{ExperimentID: 3, VideoID: "A", Position: 0, Mean: 0.4, Samples: 20}
	require.NoError(t, b.SaveSegment(ctx, seg))
	require.NoError(t, b.SaveSession(ctx, sessionWith(3, seg)))

	assert.Equal(t, filepath.Join(root, "run-1", "session.json"), b.Path())
	raw, err := os.ReadFile(b.Path())
	require.NoError(t, err)

	var got PersistBundle
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(3), got.ExperimentID)
	assert.Equal(t, []string{"A", "B"}, got.Playlist)
	assert.Equal(t, []session.SegmentResult{seg}, got.Segments)
	assert.Equal(t, 0.4, got.Total)
	assert.Contains(t, string(raw), `"total_amusement_score"`)
}

func TestBundleSinkEmptySession(t *testing.T) {
	b := NewBundleSink(t.TempDir(), "empty", nil)
	require.NoError(t, b.SaveSession(context.Background(), session.SessionResult{ExperimentID: 1}))
	raw, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"segments": []`)
}

func TestStoreSink(t *testing.T) {
	ctx := context.Background()
	l, _ := test.NewNullLogger()
	st, err := storage.Open(storage.MemoryPath, storage.WithLogger(l))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.MigrateUp())

	_, err = st.SeedVideos(ctx, []storage.Video{{ID: "A", Link: "https://example.org/a.mp4", Duration: time.Minute, Status: storage.StatusApproved}})
	require.NoError(t, err)
	sub, err := st.GetOrCreateSubject(ctx, "Grace", 40, "f")
	require.NoError(t, err)
	exp, err := st.CreateExperiment(ctx, sub.ID, "", "run-9", time.Now())
	require.NoError(t, err)

	sink := NewStoreSink(st)
	seg := session.SegmentResult{ExperimentID: exp.ID, VideoID: "A", Position: 0, Mean: 0.3, Samples: 12}
	require.NoError(t, sink.SaveSegment(ctx, seg))
	require.NoError(t, sink.SaveSession(ctx, sessionWith(exp.ID, seg)))
	assert.ErrorIs(t, sink.SaveSession(ctx, sessionWith(exp.ID, seg)), storage.ErrAlreadyFinalized)

	scores, err := st.ExperimentVideos(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 0.3, scores[0].Score)
	assert.Equal(t, 12, scores[0].Samples)

	got, err := st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TotalScore)
	assert.Equal(t, 0.4, *got.TotalScore)
}

func TestTimelineSink(t *testing.T) {
	var got clients.TimelineReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-timeline", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","path":"outputs/run-2/timeline.png"}`))
	}))
	defer srv.Close()

	sink := NewTimelineSink(clients.NewHTTP(), srv.URL, "run-2", "outputs/run-2")
	ctx := context.Background()
	require.NoError(t, sink.SaveSegment(ctx, session.SegmentResult{VideoID: "ignored"}))
	require.NoError(t, sink.SaveSession(ctx, sessionWith(5,
		session.SegmentResult{VideoID: "A", Mean: 0.1},
		session.SegmentResult{VideoID: "B", Mean: 0.7},
	)))

	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, int64(5), got.ExperimentID)
	assert.Equal(t, []string{"A", "B"}, got.VideoIDs)
	assert.Equal(t, []float64{0.1, 0.7}, got.Scores)
	assert.Equal(t, 0.4, got.Total)
}
