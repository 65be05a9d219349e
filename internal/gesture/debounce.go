package gesture

import "time"

// Cooldowns maps cooldown-bearing gestures to their minimum re-trigger interval.
type Cooldowns map[Gesture]time.Duration

// DefaultCooldowns returns cooldowns for the discrete actions.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{
		Jump: 500 * time.Millisecond,
		Duck: 500 * time.Millisecond,
	}
}

// Debouncer majority-votes raw classifications over a sliding window and
// enforces per-gesture cooldowns.
type Debouncer struct {
	window    int
	history   []Gesture
	last      Gesture
	cooldowns Cooldowns
	triggered map[Gesture]time.Time
}

// Window bounds.
const (
	MinWindow     = 3
	MaxWindow     = 10
	DefaultWindow = 5
)

// NewDebouncer creates a Debouncer over the last window votes. Values outside
// [MinWindow, MaxWindow] are clamped.
func NewDebouncer(window int, cooldowns Cooldowns) *Debouncer {
	if window < MinWindow {
		window = MinWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	d := &Debouncer{
		window:    window,
		cooldowns: cooldowns,
	}
	d.Reset()
	return d
}

// Push adds one vote at now. It returns the new gesture and true exactly when
// the majority changes away from Last and any cooldown has elapsed; the vote
// stays in the window either way.
func (d *Debouncer) Push(vote Gesture, now time.Time) (Gesture, bool) {
	copy(d.history, d.history[1:])
	d.history[d.window-1] = vote

	candidate := d.Majority()
	if candidate == d.last {
		return d.last, false
	}

	if cooldown, ok := d.cooldowns[candidate]; ok && cooldown > 0 {
		if at, seen := d.triggered[candidate]; seen && now.Sub(at) < cooldown {
			return d.last, false
		}
	}

	d.triggered[candidate] = now
	d.last = candidate
	return candidate, true
}

// Majority returns the most frequent vote in the window. Ties keep Last when
// it is among the leaders, otherwise the most recent leader wins.
func (d *Debouncer) Majority() Gesture {
	var counts [len(names)]int
	best := 0
	for _, g := range d.history {
		counts[g]++
		if counts[g] > best {
			best = counts[g]
		}
	}

	if counts[d.last] == best {
		return d.last
	}
	for i := len(d.history) - 1; i >= 0; i-- {
		if counts[d.history[i]] == best {
			return d.history[i]
		}
	}
	return d.last
}

// Last returns the last accepted gesture.
func (d *Debouncer) Last() Gesture {
	return d.last
}

// History returns a copy of the voting window, oldest first.
func (d *Debouncer) History() []Gesture {
	return append([]Gesture(nil), d.history...)
}

// Window returns the voting window size.
func (d *Debouncer) Window() int {
	return d.window
}

// Reset refills the window with NONE votes and clears the last gesture and
// all cooldown stamps. A gesture needs a real majority of the window to win.
func (d *Debouncer) Reset() {
	d.history = make([]Gesture, d.window) // all None
	d.last = None
	d.triggered = make(map[Gesture]time.Time)
}
