// Package features turns facial landmarks into action-unit signals.
package features

import (
	"errors"
	"fmt"
)

var ErrShortLandmarks = errors.New("landmark set too short")

// AUs is one frame's action-unit triple.
type AUs struct {
	AU25 float64 `json:"au25"` // lips part: mouth open / mouth width
	AU12 float64 `json:"au12"` // lip corner pull, relative to baseline width
	AU6  float64 `json:"au6"`  // cheek raise, relative to baseline eye opening
}

// Measurements are the raw pixel-space quantities behind an AUs value.
type Measurements struct {
	MouthOpen  float64
	MouthWidth float64
	EyeOpening float64
}

// Extractor computes AUs per frame and calibrates its baseline on the first
// frames it sees. Not safe for concurrent use.
type Extractor struct {
	baseline *Baseline
}

func NewExtractor(baselineFrames int) *Extractor {
	return &Extractor{baseline: NewBaseline(baselineFrames)}
}

func (x *Extractor) Baseline() *Baseline { return x.baseline }

// Measure converts the mouth and eye landmarks to pixels and measures them.
func Measure(lm Landmarks, width, height int) (Measurements, error) {
	if len(lm) < MinLandmarks {
		return Measurements{}, fmt.Errorf("%w: got %d points, need %d", ErrShortLandmarks, len(lm), MinLandmarks)
	}
	w, h := float64(width), float64(height)
	px := func(i int) Point { return lm[i].scale(w, h) }

	aperture := func(e eye) float64 {
		return Aperture(px(e.upper), px(e.lower), px(e.inner), px(e.outer))
	}

	return Measurements{
		MouthOpen:  Dist(px(UpperLip), px(LowerLip)),
		MouthWidth: Dist(px(MouthLeft), px(MouthRight)),
		EyeOpening: (aperture(leftEye) + aperture(rightEye)) / 2,
	}, nil
}

// Update measures one detected face, advances baseline calibration and
// returns the frame's AUs. Frames without a face must not be passed in.
func (x *Extractor) Update(lm Landmarks, width, height int) (AUs, error) {
	m, err := Measure(lm, width, height)
	if err != nil {
		return AUs{}, err
	}
	x.baseline.Observe(m.MouthWidth, m.EyeOpening)
	return x.derive(m), nil
}

func (x *Extractor) derive(m Measurements) AUs {
	var out AUs
	if m.MouthWidth > Epsilon {
		out.AU25 = m.MouthOpen / m.MouthWidth
	}
	bw, be, ok := x.baseline.Values()
	if !ok {
		return out
	}
	if bw > Epsilon {
		out.AU12 = max(0, (m.MouthWidth-bw)/bw)
	}
	if be > Epsilon {
		out.AU6 = max(0, (be-m.EyeOpening)/be)
	}
	return out
}
