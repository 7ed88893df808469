// Package smoothing provides scalar stream smoothers.
package smoothing

// EMA is an exponential moving average over a scalar stream.
// An EMA is not safe for concurrent use.
type EMA struct {
	alpha  float64
	value  float64
	primed bool
}

// NewEMA returns a smoother with factor alpha. alpha is expected in (0,1];
// config validation enforces the range.
func NewEMA(alpha float64) *EMA {
	return &EMA{alpha: alpha}
}

// Update folds x into the average and returns the new value. The first call
// after construction or Reset returns x unchanged.
func (e *EMA) Update(x float64) float64 {
	if !e.primed {
		e.value = x
		e.primed = true
		return e.value
	}
	e.value = e.alpha*x + (1-e.alpha)*e.value
	return e.value
}

// Value returns the last smoothed value, or 0 before the first Update.
func (e *EMA) Value() float64 { return e.value }

func (e *EMA) Reset() {
	e.value = 0
	e.primed = false
}

func (e *EMA) Alpha() float64 { return e.alpha }
