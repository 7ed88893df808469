package features

import "math"

// Epsilon guards every geometric ratio against near-zero denominators.
const Epsilon = 1e-6

// Point is a 2D coordinate. Landmarks carry normalized [0,1] points; the
// extractor converts them to pixels before measuring.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) scale(w, h float64) Point { return Point{X: p.X * w, Y: p.Y * h} }

// Dist is the Euclidean distance between a and b.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Aperture is the vertical span upper-lower over the horizontal span
// inner-outer, or 0 when the horizontal span is within Epsilon of zero.
func Aperture(upper, lower, inner, outer Point) float64 {
	v := Dist(upper, lower)
	h := Dist(inner, outer)
	if h <= Epsilon {
		return 0
	}
	return v / h
}
