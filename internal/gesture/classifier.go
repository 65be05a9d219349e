package gesture

import (
	"math"

	"github.com/ayusman/headrun/internal/headpose"
)

// Thresholds holds the classification bands, all in normalized units.
type Thresholds struct {
	YawLeft       float64 `json:"yaw_left"`   // MOVE_LEFT at or below this (negative)
	YawRight      float64 `json:"yaw_right"`  // MOVE_RIGHT at or above this
	PitchUp       float64 `json:"pitch_up"`   // JUMP at or below this (negative)
	PitchDown     float64 `json:"pitch_down"` // DUCK at or above this
	DeadZone      float64 `json:"dead_zone"`
	ConfidenceMin float64 `json:"confidence_min"`
	// Dominance is how much larger |pitch| must be than |yaw| before pitch
	// is tested, preventing cross-talk between the axes.
	Dominance float64 `json:"dominance"`
}

// DefaultThresholds returns the default classification bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		YawLeft:       -0.5,
		YawRight:      0.5,
		PitchUp:       -0.4,
		PitchDown:     0.4,
		DeadZone:      0.15,
		ConfidenceMin: 0.5,
		Dominance:     1.2,
	}
}

// Classifier maps a calibrated orientation to a raw per-frame gesture.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier with the given thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// Thresholds returns the active thresholds.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// SetThresholds replaces the active thresholds.
func (c *Classifier) SetThresholds(t Thresholds) {
	c.thresholds = t
}

// Classify returns the gesture for o given the previously emitted gesture.
// Rules are tried in order and the first match wins:
//
//  1. pitch dominates yaw: DUCK or JUMP past the pitch thresholds
//  2. yaw outside the dead zone: MOVE_LEFT or MOVE_RIGHT past the yaw thresholds
//  3. both axes inside the dead zone, or previous was DUCK: NONE
//  4. otherwise hold previous
func (c *Classifier) Classify(o headpose.Orientation, previous Gesture) Gesture {
	t := c.thresholds
	absYaw := math.Abs(o.Yaw)
	absPitch := math.Abs(o.Pitch)

	if absPitch > absYaw*t.Dominance {
		switch {
		case o.Pitch >= t.PitchDown:
			return Duck
		case o.Pitch <= t.PitchUp:
			return Jump
		}
	} else if absYaw > t.DeadZone {
		switch {
		case o.Yaw <= t.YawLeft:
			return MoveLeft
		case o.Yaw >= t.YawRight:
			return MoveRight
		}
	}

	// Ducking is momentary: it never holds once the condition clears.
	if (absYaw <= t.DeadZone && absPitch <= t.DeadZone) || previous == Duck {
		return None
	}

	return previous
}
