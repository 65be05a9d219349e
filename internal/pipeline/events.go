package pipeline

import (
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/gesture"
)

// Event is an accepted gesture change.
type Event struct {
	Gesture  gesture.Gesture `json:"gesture"`
	Previous gesture.Gesture `json:"previous"`
	At       time.Time       `json:"at"`
	// Yaw and Pitch are the calibrated orientation in degrees when the change
	// was accepted. Both are zero for changes caused by lost tracking.
	Yaw        float64 `json:"yaw"`
	Pitch      float64 `json:"pitch"`
	Confidence float64 `json:"confidence"`
}

// Stats is the per-frame snapshot delivered to stats listeners.
type Stats struct {
	At          time.Time         `json:"at"`
	FacePresent bool              `json:"face_present"`
	Yaw         float64           `json:"yaw"`
	Pitch       float64           `json:"pitch"`
	Confidence  float64           `json:"confidence"`
	FPS         float64           `json:"fps"`
	Vote        gesture.Gesture   `json:"vote"`
	Gesture     gesture.Gesture   `json:"gesture"`
	Calibration calibration.State `json:"calibration"`
	Progress    float64           `json:"progress"`
	Degraded    bool              `json:"degraded"`
}

// DegradedEvent signals that tracking has been unusable for longer than the
// failure budget.
type DegradedEvent struct {
	At             time.Time `json:"at"`
	FailedFrames   int       `json:"failed_frames"`
	LastFaceSeenAt time.Time `json:"last_face_seen_at"`
}

// Status is a point-in-time view of the pipeline.
type Status struct {
	Calibration calibration.State    `json:"calibration"`
	Progress    float64              `json:"progress"`
	Profile     *calibration.Profile `json:"profile,omitempty"`
	Error       string               `json:"error,omitempty"`
	Gesture     gesture.Gesture      `json:"gesture"`
	Degraded    bool                 `json:"degraded"`
	FPS         float64              `json:"fps"`
	Frames      uint64               `json:"frames"`
}

type listeners struct {
	gesture    []func(Event)
	stats      []func(Stats)
	calibrated []func(calibration.Profile)
	failed     []func(error)
	degraded   []func(DegradedEvent)
}

// OnGesture registers fn to receive accepted gesture changes.
func (p *Pipeline) OnGesture(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.gesture = append(p.listeners.gesture, fn)
}

// OnStats registers fn to receive a Stats snapshot for every frame.
func (p *Pipeline) OnStats(fn func(Stats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.stats = append(p.listeners.stats, fn)
}

// OnCalibrated registers fn to receive committed calibration profiles.
func (p *Pipeline) OnCalibrated(fn func(calibration.Profile)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.calibrated = append(p.listeners.calibrated, fn)
}

// OnCalibrationFailed registers fn to receive calibration timeouts.
func (p *Pipeline) OnCalibrationFailed(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.failed = append(p.listeners.failed, fn)
}

// OnDegraded registers fn to be told when tracking degrades.
func (p *Pipeline) OnDegraded(fn func(DegradedEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners.degraded = append(p.listeners.degraded, fn)
}

// notifications queues listener calls while the pipeline lock is held.
type notifications []func()

func (n *notifications) gesture(ls []func(Event), e Event) {
	for _, fn := range ls {
		*n = append(*n, func() { fn(e) })
	}
}

func (n *notifications) stats(ls []func(Stats), s Stats) {
	for _, fn := range ls {
		*n = append(*n, func() { fn(s) })
	}
}

func (n *notifications) calibrated(ls []func(calibration.Profile), p calibration.Profile) {
	for _, fn := range ls {
		*n = append(*n, func() { fn(p) })
	}
}

func (n *notifications) failed(ls []func(error), err error) {
	for _, fn := range ls {
		*n = append(*n, func() { fn(err) })
	}
}

func (n *notifications) degraded(ls []func(DegradedEvent), e DegradedEvent) {
	for _, fn := range ls {
		*n = append(*n, func() { fn(e) })
	}
}

func (n notifications) dispatch() {
	for _, fn := range n {
		fn()
	}
}
