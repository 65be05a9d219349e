package filter

import "github.com/ayusman/headrun/internal/headpose"

// Pair runs independent filters over the yaw and pitch streams.
type Pair struct {
	yaw   *Kalman
	pitch *Kalman
}

// NewPair creates a yaw/pitch filter pair sharing one configuration.
func NewPair(config Config) *Pair {
	return &Pair{
		yaw:   NewKalman(config),
		pitch: NewKalman(config),
	}
}

// Filter smooths both axes of o.
func (p *Pair) Filter(o headpose.Orientation) headpose.Orientation {
	return headpose.Orientation{
		Yaw:   p.yaw.Filter(o.Yaw),
		Pitch: p.pitch.Filter(o.Pitch),
	}
}

// Value returns the current smoothed orientation.
func (p *Pair) Value() headpose.Orientation {
	return headpose.Orientation{Yaw: p.yaw.Value(), Pitch: p.pitch.Value()}
}

// Reset resets both filters.
func (p *Pair) Reset() {
	p.yaw.Reset()
	p.pitch.Reset()
}
