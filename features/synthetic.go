package features

// FaceShape describes a synthetic face in normalized units.
type FaceShape struct {
	MouthOpen  float64 // lip gap
	MouthWidth float64 // corner to corner
	EyeOpening float64 // eye aperture ratio (height / width)
}

const (
	meshSize  = 468
	eyeWidth  = 0.1
	mouthY    = 0.7
	eyeY      = 0.4
	leftEyeX  = 0.35
	rightEyeX = 0.65
)

// Synthetic lays out a full mesh-sized landmark set with the given shape.
// Only the points the extractor reads are placed; the rest sit at the
// centre. On a square frame Measure returns the shape's values scaled by
// the frame side.
func Synthetic(s FaceShape) Landmarks {
	lm := make(Landmarks, meshSize)
	for i := range lm {
		lm[i] = Point{X: 0.5, Y: 0.5}
	}
	lm[UpperLip] = Point{X: 0.5, Y: mouthY - s.MouthOpen/2}
	lm[LowerLip] = Point{X: 0.5, Y: mouthY + s.MouthOpen/2}
	lm[MouthLeft] = Point{X: 0.5 - s.MouthWidth/2, Y: mouthY}
	lm[MouthRight] = Point{X: 0.5 + s.MouthWidth/2, Y: mouthY}

	gap := s.EyeOpening * eyeWidth / 2
	place := func(e eye, cx float64) {
		lm[e.upper] = Point{X: cx, Y: eyeY - gap}
		lm[e.lower] = Point{X: cx, Y: eyeY + gap}
		lm[e.inner] = Point{X: cx + eyeWidth/2, Y: eyeY}
		lm[e.outer] = Point{X: cx - eyeWidth/2, Y: eyeY}
	}
	place(leftEye, leftEyeX)
	place(rightEye, rightEyeX)
	return lm
}
