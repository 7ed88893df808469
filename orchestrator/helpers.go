package orchestrator

import (
	"github.com/maastricht-university/amusement-pipeline/clients"
	"github.com/maastricht-university/amusement-pipeline/features"
	"github.com/maastricht-university/amusement-pipeline/scoring"
	"github.com/maastricht-university/amusement-pipeline/smoothing"
)

// smoothers holds one EMA per fused signal.
type smoothers struct {
	au25, au12, au6, audio *smoothing.EMA
}

func newSmoothers(alpha float64) smoothers {
	return smoothers{
		au25:  smoothing.NewEMA(alpha),
		au12:  smoothing.NewEMA(alpha),
		au6:   smoothing.NewEMA(alpha),
		audio: smoothing.NewEMA(alpha),
	}
}

func (s smoothers) update(aus features.AUs, audio float64) scoring.Inputs {
	return scoring.Inputs{
		AU25:  s.au25.Update(aus.AU25),
		AU12:  s.au12.Update(aus.AU12),
		AU6:   s.au6.Update(aus.AU6),
		Audio: s.audio.Update(audio),
	}
}

func toFrame(lf *clients.LandmarkFrame) Frame {
	f := Frame{Width: lf.Width, Height: lf.Height}
	if !lf.Face || len(lf.Landmarks) == 0 {
		return f
	}
	f.Landmarks = make(features.Landmarks, len(lf.Landmarks))
	for i, p := range lf.Landmarks {
		f.Landmarks[i] = features.Point{X: p[0], Y: p[1]}
	}
	return f
}

func toLandmarkFrame(f Frame) clients.LandmarkFrame {
	lf := clients.LandmarkFrame{Width: f.Width, Height: f.Height, Face: f.FaceFound()}
	if lf.Face {
		lf.Landmarks = make([][2]float64, len(f.Landmarks))
		for i, p := range f.Landmarks {
			lf.Landmarks[i] = [2]float64{p.X, p.Y}
		}
	}
	return lf
}
