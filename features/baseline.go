package features

// Phase is the calibration phase of a Baseline.
type Phase uint8

const (
	// Uncalibrated: no face seen yet, no reference values.
	Uncalibrated Phase = iota
	// Calibrating: reference values follow a 0.9/0.1 EMA of observed frames.
	Calibrating
	// Frozen: warm-up done, reference values never change again.
	Frozen
)

func (p Phase) String() string {
	switch p {
	case Uncalibrated:
		return "uncalibrated"
	case Calibrating:
		return "calibrating"
	case Frozen:
		return "frozen"
	}
	return "unknown"
}

const baselineDecay = 0.9

// Baseline holds a subject's neutral-face reference for mouth width and eye
// opening. It is calibrated over the first `frames` observations and then
// frozen for the rest of the session.
type Baseline struct {
	frames int
	seen   int
	phase  Phase

	mouthWidth float64
	eyeOpening float64
}

// NewBaseline returns a baseline calibrated over the given number of frames.
// With frames == 0 the baseline is frozen immediately and never set.
func NewBaseline(frames int) *Baseline {
	b := &Baseline{frames: frames}
	if frames <= 0 {
		b.phase = Frozen
	}
	return b
}

// Observe advances calibration with one frame's measurements. It is a no-op
// once the baseline is frozen.
func (b *Baseline) Observe(mouthWidth, eyeOpening float64) {
	if b.phase == Frozen {
		return
	}
	b.seen++
	if b.phase == Uncalibrated {
		b.mouthWidth = mouthWidth
		b.eyeOpening = eyeOpening
		b.phase = Calibrating
	} else {
		b.mouthWidth = baselineDecay*b.mouthWidth + (1-baselineDecay)*mouthWidth
		b.eyeOpening = baselineDecay*b.eyeOpening + (1-baselineDecay)*eyeOpening
	}
	if b.seen >= b.frames {
		b.phase = Frozen
	}
}

// Values returns the reference mouth width and eye opening. ok is false while
// no frame has been observed.
func (b *Baseline) Values() (mouthWidth, eyeOpening float64, ok bool) {
	if b.seen == 0 {
		return 0, 0, false
	}
	return b.mouthWidth, b.eyeOpening, true
}

func (b *Baseline) Phase() Phase { return b.phase }

// Seen is the number of frames folded into the baseline.
func (b *Baseline) Seen() int { return b.seen }
