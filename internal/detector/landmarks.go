// Package detector provides face landmark detection interfaces and types for head gesture input.
package detector

import "math"

// Face landmark indices following the MediaPipe face mesh topology.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
// Only these named points are read downstream; detectors may return more.
const (
	NoseTip      = 1
	Forehead     = 10
	LeftEye      = 159
	Chin         = 152
	LeftEar      = 234
	RightEye     = 386
	RightEar     = 454
	NumLandmarks = 468
)

// Blendshape names read from the face landmarker output.
const (
	BlendshapeEyeBlinkLeft  = "eyeBlinkLeft"
	BlendshapeEyeBlinkRight = "eyeBlinkRight"
)

// Point3D represents a 3D point in normalized image space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks is one detected face for one video frame.
type FaceLandmarks struct {
	Points      []Point3D          `json:"points"`
	Blendshapes map[string]float64 `json:"blendshapes,omitempty"`
	Score       float64            `json:"score"`
}

// Point returns the landmark at index i, or false when the frame is too short.
func (f *FaceLandmarks) Point(i int) (Point3D, bool) {
	if f == nil || i < 0 || i >= len(f.Points) {
		return Point3D{}, false
	}
	return f.Points[i], true
}

// Blendshape returns the named expression coefficient if the detector reported it.
func (f *FaceLandmarks) Blendshape(name string) (float64, bool) {
	if f == nil || f.Blendshapes == nil {
		return 0, false
	}
	v, ok := f.Blendshapes[name]
	return v, ok
}

// Preset face geometry used by NeutralFace and TurnedFace.
const (
	presetCenterX    = 0.5
	presetCenterY    = 0.51
	presetHalfWidth  = 0.15
	presetHalfHeight = 0.21
)

// NeutralFace returns a frontal face centred in the frame.
func NeutralFace() FaceLandmarks {
	return TurnedFace(0, 0)
}

// TurnedFace returns a synthetic face rotated by yawDeg (negative = left) and
// pitchDeg (negative = up). Ears and chin/forehead foreshorten with the cosine
// of the angle while the nose tip, which sits in front of the rotation axis,
// moves with the sine.
func TurnedFace(yawDeg, pitchDeg float64) FaceLandmarks {
	yaw := yawDeg * math.Pi / 180
	pitch := pitchDeg * math.Pi / 180

	halfW := presetHalfWidth * math.Cos(yaw)
	halfH := presetHalfHeight * math.Cos(pitch)
	noseX := presetCenterX + presetHalfWidth*math.Sin(yaw)
	noseY := presetCenterY + presetHalfHeight*math.Sin(pitch)

	face := FaceLandmarks{
		Points: make([]Point3D, NumLandmarks),
		Score:  0.95,
	}

	// Unnamed points collapse onto the face centre.
	for i := range face.Points {
		face.Points[i] = Point3D{X: presetCenterX, Y: presetCenterY}
	}

	face.Points[LeftEar] = Point3D{X: presetCenterX - halfW, Y: presetCenterY, Z: 0.1}
	face.Points[RightEar] = Point3D{X: presetCenterX + halfW, Y: presetCenterY, Z: 0.1}
	face.Points[Forehead] = Point3D{X: presetCenterX, Y: presetCenterY - halfH}
	face.Points[Chin] = Point3D{X: presetCenterX, Y: presetCenterY + halfH}
	face.Points[NoseTip] = Point3D{X: noseX, Y: noseY, Z: -0.08}

	eyeY := presetCenterY - 0.4*halfH
	face.Points[LeftEye] = Point3D{X: noseX - 0.45*halfW, Y: eyeY}
	face.Points[RightEye] = Point3D{X: noseX + 0.45*halfW, Y: eyeY}

	return face
}

// WithBlink returns a copy of f carrying eye blink blendshapes.
func WithBlink(f FaceLandmarks, left, right float64) FaceLandmarks {
	out := f
	out.Points = append([]Point3D(nil), f.Points...)
	out.Blendshapes = map[string]float64{
		BlendshapeEyeBlinkLeft:  left,
		BlendshapeEyeBlinkRight: right,
	}
	return out
}
