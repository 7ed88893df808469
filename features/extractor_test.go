package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const side = 100

var neutral = FaceShape{MouthOpen: 0.02, MouthWidth: 0.2, EyeOpening: 0.3}

func TestDistAndAperture(t *testing.T) {
	assert.Equal(t, 5.0, Dist(Point{0, 0}, Point{3, 4}))
	assert.InDelta(t, 0.5, Aperture(Point{0, 0}, Point{0, 2}, Point{0, 0}, Point{4, 0}), 1e-12)
	assert.Equal(t, 0.0, Aperture(Point{0, 0}, Point{0, 2}, Point{1, 1}, Point{1, 1}))
}

func TestMeasureSyntheticFace(t *testing.T) {
	m, err := Measure(Synthetic(neutral), side, side)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m.MouthOpen, 1e-9)
	assert.InDelta(t, 20.0, m.MouthWidth, 1e-9)
	assert.InDelta(t, 0.3, m.EyeOpening, 1e-9)
}

func TestMeasureShortLandmarks(t *testing.T) {
	_, err := Measure(make(Landmarks, 10), side, side)
	assert.ErrorIs(t, err, ErrShortLandmarks)
}

func TestZeroMouthWidthGivesZeroAU25AndAU12(t *testing.T) {
	x := NewExtractor(5)
	_, err := x.Update(Synthetic(neutral), side, side)
	require.NoError(t, err)

	aus, err := x.Update(Synthetic(FaceShape{MouthOpen: 0.1, MouthWidth: 0, EyeOpening: 0.3}), side, side)
	require.NoError(t, err)
	assert.Equal(t, 0.0, aus.AU25)
	assert.Equal(t, 0.0, aus.AU12)

	// a fresh extractor seeded by a zero-width mouth never divides by zero
	y := NewExtractor(5)
	aus, err = y.Update(Synthetic(FaceShape{MouthOpen: 0.1, MouthWidth: 0, EyeOpening: 0}), side, side)
	require.NoError(t, err)
	assert.Equal(t, AUs{}, aus)
}

func TestUnsetBaselineGivesZeroRelativeAUs(t *testing.T) {
	x := NewExtractor(0)
	aus, err := x.Update(Synthetic(FaceShape{MouthOpen: 0.05, MouthWidth: 0.4, EyeOpening: 0.1}), side, side)
	require.NoError(t, err)
	assert.InDelta(t, 0.125, aus.AU25, 1e-9)
	assert.Equal(t, 0.0, aus.AU12)
	assert.Equal(t, 0.0, aus.AU6)
	_, _, ok := x.Baseline().Values()
	assert.False(t, ok)
}

func TestFirstFrameSeedsBaseline(t *testing.T) {
	x := NewExtractor(60)
	aus, err := x.Update(Synthetic(neutral), side, side)
	require.NoError(t, err)
	assert.Equal(t, 0.0, aus.AU12)
	assert.Equal(t, 0.0, aus.AU6)

	w, e, ok := x.Baseline().Values()
	require.True(t, ok)
	assert.InDelta(t, 20.0, w, 1e-9)
	assert.InDelta(t, 0.3, e, 1e-9)
	assert.Equal(t, Calibrating, x.Baseline().Phase())
}

func TestBaselineEMATrajectoryDuringWarmup(t *testing.T) {
	b := NewBaseline(10)
	inputs := []float64{10, 20, 20, 20, 20, 20, 20, 20, 20, 20}
	want := 0.0
	for i, v := range inputs {
		b.Observe(v, v/100)
		if i == 0 {
			want = v
		} else {
			want = 0.9*want + 0.1*v
		}
		w, e, ok := b.Values()
		require.True(t, ok)
		assert.InDelta(t, want, w, 1e-9)
		assert.InDelta(t, want/100, e, 1e-9)
		assert.LessOrEqual(t, w, 20.0)
	}
	assert.Equal(t, Frozen, b.Phase())
}

func TestBaselineFrozenAfterWarmup(t *testing.T) {
	x := NewExtractor(3)
	for i := 0; i < 3; i++ {
		_, err := x.Update(Synthetic(neutral), side, side)
		require.NoError(t, err)
	}
	require.Equal(t, Frozen, x.Baseline().Phase())
	w0, e0, _ := x.Baseline().Values()

	smile := FaceShape{MouthOpen: 0.1, MouthWidth: 0.3, EyeOpening: 0.15}
	var aus AUs
	for i := 0; i < 20; i++ {
		var err error
		aus, err = x.Update(Synthetic(smile), side, side)
		require.NoError(t, err)
	}
	w1, e1, _ := x.Baseline().Values()
	assert.Equal(t, w0, w1)
	assert.Equal(t, e0, e1)
	assert.Equal(t, 3, x.Baseline().Seen())

	assert.InDelta(t, 10.0/30.0, aus.AU25, 1e-9)
	assert.InDelta(t, 0.5, aus.AU12, 1e-9)
	assert.InDelta(t, 0.5, aus.AU6, 1e-9)
}

func TestRelativeAUsClampAtZero(t *testing.T) {
	x := NewExtractor(1)
	_, err := x.Update(Synthetic(neutral), side, side)
	require.NoError(t, err)

	// narrower mouth and wider eyes than baseline
	aus, err := x.Update(Synthetic(FaceShape{MouthOpen: 0.02, MouthWidth: 0.1, EyeOpening: 0.6}), side, side)
	require.NoError(t, err)
	assert.Equal(t, 0.0, aus.AU12)
	assert.Equal(t, 0.0, aus.AU6)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "frozen", Frozen.String())
	assert.Equal(t, "unknown", Phase(9).String())
}
