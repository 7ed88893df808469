package audio

import (
	"time"

	"go.uber.org/atomic"
)

// ScoreCell publishes the latest laughter score from the estimator to any
// number of readers. Readers get the most recent value, which may be up to
// one classification period old.
type ScoreCell struct {
	score   atomic.Float64
	updated atomic.Int64 // unix nanos of the last Store, 0 if never
}

func NewScoreCell() *ScoreCell { return &ScoreCell{} }

func (c *ScoreCell) Load() float64 { return c.score.Load() }

func (c *ScoreCell) Store(v float64) {
	c.score.Store(v)
	c.updated.Store(time.Now().UnixNano())
}

// UpdatedAt returns when the score was last published, or the zero time.
func (c *ScoreCell) UpdatedAt() time.Time {
	ns := c.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
