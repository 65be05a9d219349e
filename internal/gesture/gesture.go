// Package gesture classifies calibrated head orientation into discrete game
// controls and debounces the result.
package gesture

import (
	"fmt"
	"strings"
)

// Gesture is a discrete control signal.
type Gesture int

const (
	// None is the neutral state.
	None Gesture = iota
	// MoveLeft is a head turn to the left.
	MoveLeft
	// MoveRight is a head turn to the right.
	MoveRight
	// Jump is a head tilt upward.
	Jump
	// Duck is a head tilt downward.
	Duck
)

// All lists every gesture in declaration order.
var All = []Gesture{None, MoveLeft, MoveRight, Jump, Duck}

var names = [...]string{
	None:      "NONE",
	MoveLeft:  "MOVE_LEFT",
	MoveRight: "MOVE_RIGHT",
	Jump:      "JUMP",
	Duck:      "DUCK",
}

func (g Gesture) String() string {
	if g < 0 || int(g) >= len(names) {
		return fmt.Sprintf("Gesture(%d)", int(g))
	}
	return names[g]
}

// Parse returns the gesture named s (case-insensitive).
func Parse(s string) (Gesture, error) {
	for i, name := range names {
		if strings.EqualFold(s, name) {
			return Gesture(i), nil
		}
	}
	return None, fmt.Errorf("unknown gesture %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (g Gesture) MarshalText() ([]byte, error) {
	if g < 0 || int(g) >= len(names) {
		return nil, fmt.Errorf("invalid gesture %d", int(g))
	}
	return []byte(names[g]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gesture) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
