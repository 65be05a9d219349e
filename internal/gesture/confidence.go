package gesture

import (
	"math"

	"github.com/ayusman/headrun/internal/detector"
	"github.com/ayusman/headrun/internal/headpose"
)

// ConfidenceScorer rates how trustworthy a frame's landmarks are, in [0,1].
type ConfidenceScorer interface {
	Score(face *detector.FaceLandmarks) float64
}

// ScorerFunc adapts a function to ConfidenceScorer.
type ScorerFunc func(face *detector.FaceLandmarks) float64

// Score calls f(face).
func (f ScorerFunc) Score(face *detector.FaceLandmarks) float64 {
	return f(face)
}

// FaceSizeScorer scores a face by how close its ear span is to a reference
// size, blended with an eyes-open score when blink blendshapes are present.
type FaceSizeScorer struct {
	// ReferenceSize is the expected ear span in normalized image width.
	ReferenceSize float64
	// SizeWeight and BlinkWeight blend the two scores when blinks are known.
	SizeWeight  float64
	BlinkWeight float64
}

// DefaultScorer returns the default face-size/blink scorer.
func DefaultScorer() *FaceSizeScorer {
	return &FaceSizeScorer{
		ReferenceSize: 0.3,
		SizeWeight:    0.7,
		BlinkWeight:   0.3,
	}
}

// Score implements ConfidenceScorer.
func (s *FaceSizeScorer) Score(face *detector.FaceLandmarks) float64 {
	size, ok := headpose.EarDistance(face)
	if !ok || s.ReferenceSize <= 0 {
		return 0
	}
	sizeScore := clamp01(1 - math.Abs(size-s.ReferenceSize)/s.ReferenceSize)

	left, okL := face.Blendshape(detector.BlendshapeEyeBlinkLeft)
	right, okR := face.Blendshape(detector.BlendshapeEyeBlinkRight)
	if !okL || !okR || s.SizeWeight+s.BlinkWeight <= 0 {
		return sizeScore
	}

	// Both eyes must be closed to count as a blink; one closed eye is a wink
	// and leaves the geometry intact.
	openScore := clamp01(1 - math.Min(left, right))
	return (s.SizeWeight*sizeScore + s.BlinkWeight*openScore) / (s.SizeWeight + s.BlinkWeight)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
