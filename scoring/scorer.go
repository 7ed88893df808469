// Package scoring fuses smoothed facial and audio signals into smile,
// laughter and amusement scores.
package scoring

import (
	"fmt"
	"math"
)

// Weights are the fixed linear fusion coefficients. They are not normalized.
type Weights struct {
	Smile     [2]float64 // AU12, AU6
	Laughter  [4]float64 // AU12, AU6, AU25, audio
	Amusement [2]float64 // laughter, smile
}

func DefaultWeights() Weights {
	return Weights{
		Smile:     [2]float64{0.5, 0.5},
		Laughter:  [4]float64{0.3, 0.3, 0.2, 0.2},
		Amusement: [2]float64{0.6, 0.4},
	}
}

// Validate only checks that every weight is a finite number.
func (w Weights) Validate() error {
	check := func(name string, ws []float64) error {
		for i, v := range ws {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s weight %d is not finite: %v", name, i, v)
			}
		}
		return nil
	}
	if err := check("smile", w.Smile[:]); err != nil {
		return err
	}
	if err := check("laughter", w.Laughter[:]); err != nil {
		return err
	}
	return check("amusement", w.Amusement[:])
}

// Inputs are the smoothed signals for one frame.
type Inputs struct {
	AU25  float64 `json:"au25"`
	AU12  float64 `json:"au12"`
	AU6   float64 `json:"au6"`
	Audio float64 `json:"audio"`
}

// Scale multiplies every input by k.
func (in Inputs) Scale(k float64) Inputs {
	return Inputs{AU25: k * in.AU25, AU12: k * in.AU12, AU6: k * in.AU6, Audio: k * in.Audio}
}

type Scores struct {
	Smile     float64 `json:"smile"`
	Laughter  float64 `json:"laughter"`
	Amusement float64 `json:"amusement"`
}

type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer { return &Scorer{w: w} }

func (s *Scorer) Weights() Weights { return s.w }

func (s *Scorer) Compute(in Inputs) Scores {
	w := s.w
	smile := w.Smile[0]*in.AU12 + w.Smile[1]*in.AU6
	laughter := w.Laughter[0]*in.AU12 +
		w.Laughter[1]*in.AU6 +
		w.Laughter[2]*in.AU25 +
		w.Laughter[3]*in.Audio
	return Scores{
		Smile:     smile,
		Laughter:  laughter,
		Amusement: w.Amusement[0]*laughter + w.Amusement[1]*smile,
	}
}
