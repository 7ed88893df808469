package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	l, _ := test.NewNullLogger()
	s, err := Open(MemoryPath, append([]Option{WithLogger(l)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.MigrateUp())
	return s
}

var catalog = []Video{
	{ID: "cat", Link: "https://example.org/cat.mp4", Duration: 40 * time.Second, Status: StatusApproved, Categories: []string{"animals", "funny"}},
	{ID: "fail", Link: "https://example.org/fail.mp4", Duration: 65 * time.Second, Categories: []string{"funny"}},
	{ID: "news", Link: "https://example.org/news.mp4", Duration: 90 * time.Second, Status: StatusRejected},
}

func TestMigrations(t *testing.T) {
	l, _ := test.NewNullLogger()
	s, err := Open(filepath.Join(t.TempDir(), "app.db"), WithLogger(l))
	require.NoError(t, err)
	defer s.Close()

	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, s.MigrateUp())
	require.NoError(t, s.MigrateUp(), "second up is a no-op")
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, s.MigrateDown())
	v, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)

	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='video'`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSeedAndListVideos(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	n, err := s.SeedVideos(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.ListVideos(ctx, "")
	require.NoError(t, err)
	want := []Video{
		{ID: "cat", Link: catalog[0].Link, Duration: 40 * time.Second, Status: StatusApproved, Categories: []string{"animals", "funny"}},
		{ID: "fail", Link: catalog[1].Link, Duration: 65 * time.Second, Status: StatusNA, Categories: []string{"funny"}},
		{ID: "news", Link: catalog[2].Link, Duration: 90 * time.Second, Status: StatusRejected},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("videos (-want +got):\n%s", diff)
	}

	// re-seeding updates in place
	upd := catalog[0]
	upd.Categories = []string{"animals"}
	upd.Duration = 41 * time.Second
	_, err = s.SeedVideos(ctx, []Video{upd})
	require.NoError(t, err)
	approved, err := s.ListVideos(ctx, StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, []string{"animals"}, approved[0].Categories)
	assert.Equal(t, 41*time.Second, approved[0].Duration)
}

func TestSeedRejectsBadInput(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.SeedVideos(ctx, []Video{{Link: "x"}})
	assert.Error(t, err)
	_, err = s.SeedVideos(ctx, []Video{{ID: "a", Link: "x", Status: "maybe"}})
	assert.Error(t, err)

	all, err := s.ListVideos(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestVideoIsKnownAndApproved(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		require bool
		id      string
		want    bool
	}{
		{false, "cat", true},
		{false, "fail", true},
		{false, "news", false},
		{false, "WAITING", false},
		{true, "cat", true},
		{true, "fail", false},
		{true, "news", false},
	}
	for _, c := range cases {
		s := openTest(t, RequireApproval(c.require))
		_, err := s.SeedVideos(ctx, catalog)
		require.NoError(t, err)

		ok, err := s.VideoIsKnownAndApproved(ctx, c.id)
		require.NoError(t, err)
		assert.Equal(t, c.want, ok, "require=%v id=%s", c.require, c.id)
	}
}

func TestScorableVideos(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	_, err := s.SeedVideos(ctx, catalog)
	require.NoError(t, err)
	vs, err := s.ScorableVideos(ctx)
	require.NoError(t, err)
	assert.Len(t, vs, 2)

	s = openTest(t, RequireApproval(true))
	_, err = s.SeedVideos(ctx, catalog)
	require.NoError(t, err)
	vs, err = s.ScorableVideos(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "cat", vs[0].ID)
}

func TestSetVideoStatus(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	_, err := s.SeedVideos(ctx, catalog)
	require.NoError(t, err)

	require.NoError(t, s.SetVideoStatus(ctx, "news", StatusApproved))
	ok, err := s.VideoIsKnownAndApproved(ctx, "news")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.SetVideoStatus(ctx, "ghost", StatusApproved), ErrNotFound)
	assert.Error(t, s.SetVideoStatus(ctx, "news", "maybe"))
}

func TestExperimentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	_, err := s.SeedVideos(ctx, catalog)
	require.NoError(t, err)

	sub, err := s.GetOrCreateSubject(ctx, "Ada", 31, "f")
	require.NoError(t, err)
	again, err := s.GetOrCreateSubject(ctx, "Ada", 31, "f")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp, err := s.CreateExperiment(ctx, sub.ID, "", "run-1", start)
	require.NoError(t, err)
	assert.Equal(t, ExperimentSingle, exp.Type)

	require.NoError(t, s.SaveVideoScore(ctx, exp.ID, "cat", 0, 0.5, 10))
	require.NoError(t, s.SaveVideoScore(ctx, exp.ID, "fail", 1, 0.25, 8))
	require.NoError(t, s.SaveVideoScore(ctx, exp.ID, "cat", 2, 0.75, 12))
	assert.Error(t, s.SaveVideoScore(ctx, exp.ID, "ghost", 3, 1, 1), "foreign key on video")

	scores, err := s.ExperimentVideos(ctx, exp.ID)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "cat", scores[0].VideoID)
	assert.Equal(t, "cat", scores[2].VideoID)
	assert.Equal(t, 0.75, scores[2].Score)

	got, err := s.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, got.TotalScore)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "Ada", got.SubjectName)
	assert.True(t, start.Equal(got.StartedAt))

	end := start.Add(7 * time.Minute)
	require.NoError(t, s.FinalizeExperiment(ctx, exp.ID, 0.5, end))
	assert.ErrorIs(t, s.FinalizeExperiment(ctx, exp.ID, 0.9, end), ErrAlreadyFinalized)
	assert.ErrorIs(t, s.FinalizeExperiment(ctx, 999, 0.9, end), ErrNotFound)

	list, err := s.ListExperiments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].TotalScore)
	assert.Equal(t, 0.5, *list[0].TotalScore)
	require.NotNil(t, list[0].FinishedAt)
	assert.True(t, end.Equal(*list[0].FinishedAt))

	_, err = s.CreateExperiment(ctx, sub.ID, "solo", "run-2", start)
	assert.Error(t, err)
	_, err = s.GetExperiment(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}
