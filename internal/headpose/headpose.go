// Package headpose turns face landmarks into normalized yaw and pitch signals.
package headpose

import (
	"errors"
	"math"

	"github.com/ayusman/headrun/internal/detector"
)

// ErrDegenerateGeometry is returned when the landmarks cannot produce an
// orientation: a named point is missing or a denominator collapses to ~0.
// Callers treat it the same as a frame with no face.
var ErrDegenerateGeometry = errors.New("degenerate face geometry")

// Epsilon is the smallest ear distance or face height accepted as a denominator.
const Epsilon = 1e-6

// DegreesPerUnit converts normalized orientation to display degrees.
const DegreesPerUnit = 45.0

// Orientation is a head orientation sample in normalized units (roughly -1..1).
// Negative yaw is left, negative pitch is up.
type Orientation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Degrees returns the display copy of o.
func (o Orientation) Degrees() Orientation {
	return Orientation{Yaw: o.Yaw * DegreesPerUnit, Pitch: o.Pitch * DegreesPerUnit}
}

// Sub returns o - other.
func (o Orientation) Sub(other Orientation) Orientation {
	return Orientation{Yaw: o.Yaw - other.Yaw, Pitch: o.Pitch - other.Pitch}
}

// Scale returns o multiplied by k on both axes.
func (o Orientation) Scale(k float64) Orientation {
	return Orientation{Yaw: o.Yaw * k, Pitch: o.Pitch * k}
}

// Config holds the extractor tuning.
type Config struct {
	// YawScale maps nose offset / ear distance to normalized yaw.
	YawScale float64
	// PitchScale maps nose offset / face height to normalized pitch.
	PitchScale float64
	// PerspectiveK scales yaw by 1+k*|pitch| for overhead or angled cameras. 0 disables.
	PerspectiveK float64
	// Mirror flips yaw for mirrored feeds so gestures follow real-world left/right.
	Mirror bool
}

// DefaultConfig returns the extractor defaults.
func DefaultConfig() Config {
	return Config{
		YawScale:   3.0,
		PitchScale: 3.0,
	}
}

// Extractor computes orientation from landmarks. It is stateless.
type Extractor struct {
	config Config
}

// NewExtractor creates an Extractor with the given configuration.
func NewExtractor(config Config) *Extractor {
	return &Extractor{config: config}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Extract derives yaw and pitch from the named landmarks of face.
func (e *Extractor) Extract(face *detector.FaceLandmarks) (Orientation, error) {
	nose, ok1 := face.Point(detector.NoseTip)
	forehead, ok2 := face.Point(detector.Forehead)
	chin, ok3 := face.Point(detector.Chin)
	leftEar, ok4 := face.Point(detector.LeftEar)
	rightEar, ok5 := face.Point(detector.RightEar)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return Orientation{}, ErrDegenerateGeometry
	}

	earDistance := math.Abs(rightEar.X - leftEar.X)
	if earDistance < Epsilon {
		return Orientation{}, ErrDegenerateGeometry
	}
	faceHeight := math.Abs(chin.Y - forehead.Y)
	if faceHeight < Epsilon {
		return Orientation{}, ErrDegenerateGeometry
	}

	faceCenterX := (leftEar.X + rightEar.X) / 2
	yaw := (nose.X - faceCenterX) / earDistance * e.config.YawScale

	midY := (forehead.Y + chin.Y) / 2
	pitch := (nose.Y - midY) / faceHeight * e.config.PitchScale

	if e.config.PerspectiveK > 0 {
		yaw *= 1 + e.config.PerspectiveK*math.Abs(pitch)
	}
	if e.config.Mirror {
		yaw = -yaw
	}

	if math.IsNaN(yaw) || math.IsNaN(pitch) || math.IsInf(yaw, 0) || math.IsInf(pitch, 0) {
		return Orientation{}, ErrDegenerateGeometry
	}

	return Orientation{Yaw: yaw, Pitch: pitch}, nil
}

// EarDistance returns the horizontal ear span of face, used as its apparent size.
func EarDistance(face *detector.FaceLandmarks) (float64, bool) {
	left, ok1 := face.Point(detector.LeftEar)
	right, ok2 := face.Point(detector.RightEar)
	if !ok1 || !ok2 {
		return 0, false
	}
	return math.Abs(right.X - left.X), true
}
