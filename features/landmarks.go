package features

// Face mesh indices (468-point topology) used by the extractor.
const (
	UpperLip   = 13
	LowerLip   = 14
	MouthLeft  = 61
	MouthRight = 291

	LeftEyeUpper = 159
	LeftEyeLower = 145
	LeftEyeOuter = 33
	LeftEyeInner = 133

	RightEyeUpper = 386
	RightEyeLower = 374
	RightEyeInner = 362
	RightEyeOuter = 263
)

// MinLandmarks is the shortest landmark set the extractor can read.
const MinLandmarks = RightEyeUpper + 1

// Landmarks is one detected face, indexed by the mesh topology above.
type Landmarks []Point

type eye struct{ upper, lower, inner, outer int }

var (
	leftEye  = eye{upper: LeftEyeUpper, lower: LeftEyeLower, inner: LeftEyeInner, outer: LeftEyeOuter}
	rightEye = eye{upper: RightEyeUpper, lower: RightEyeLower, inner: RightEyeInner, outer: RightEyeOuter}
)
