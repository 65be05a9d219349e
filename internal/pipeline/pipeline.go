// Package pipeline turns a stream of face landmark frames into debounced,
// calibrated gesture events.
//
// Each frame runs feature extraction, Kalman smoothing, calibration and
// classification, then votes into the debouncer. Frames without a usable face
// vote NONE, so brief dropouts do not flicker the control state while a
// sustained dropout converges to NONE and eventually degrades the session.
package pipeline

import (
	"sync"
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/detector"
	"github.com/ayusman/headrun/internal/filter"
	"github.com/ayusman/headrun/internal/gesture"
	"github.com/ayusman/headrun/internal/headpose"
	"github.com/ayusman/headrun/internal/log"
)

// Config aggregates the stage configurations.
type Config struct {
	Headpose         headpose.Config
	Filter           filter.Config
	ConfidenceFilter filter.Config
	Calibration      calibration.Config
	Thresholds       gesture.Thresholds
	Window           int
	Cooldowns        gesture.Cooldowns
	// FailureBudget is the number of consecutive unusable frames tolerated
	// before the session is reported degraded.
	FailureBudget int
	// LostTrackFrames is the number of consecutive unusable frames after which
	// the filters are reset, so a reacquired face does not blend with a stale
	// estimate. 0 disables.
	LostTrackFrames int
	// Scorer rates landmark quality. Nil selects gesture.DefaultScorer.
	Scorer gesture.ConfidenceScorer
}

// DefaultConfig returns the default pipeline configuration: a five frame
// vote, 500ms jump/duck cooldowns and a three second failure budget at 30fps.
func DefaultConfig() Config {
	return Config{
		Headpose:         headpose.DefaultConfig(),
		Filter:           filter.DefaultConfig(),
		ConfidenceFilter: filter.ConfidenceConfig(),
		Calibration:      calibration.DefaultConfig(),
		Thresholds:       gesture.DefaultThresholds(),
		Window:           gesture.DefaultWindow,
		Cooldowns:        gesture.DefaultCooldowns(),
		FailureBudget:    90,
		LostTrackFrames:  5,
	}
}

// fpsSmoothing is the weight of the newest frame interval in the FPS average.
const fpsSmoothing = 0.1

// Pipeline owns all per-session gesture state. Process may be called from one
// goroutine while control methods are called from others; listeners always
// run outside the internal lock, in frame order.
type Pipeline struct {
	mu sync.Mutex

	config     Config
	extractor  *headpose.Extractor
	orient     *filter.Pair
	confidence *filter.Kalman
	calibrator *calibration.Calibrator
	classifier *gesture.Classifier
	debouncer  *gesture.Debouncer
	scorer     gesture.ConfidenceScorer

	misses     int
	degraded   bool
	lastFaceAt time.Time
	lastFrame  time.Time
	fps        float64
	frames     uint64

	listeners listeners
}

// New creates a Pipeline in the calibrating state.
func New(config Config) *Pipeline {
	if config.Window <= 0 {
		config.Window = gesture.DefaultWindow
	}
	if config.FailureBudget <= 0 {
		config.FailureBudget = DefaultConfig().FailureBudget
	}
	if config.Scorer == nil {
		config.Scorer = gesture.DefaultScorer()
	}

	return &Pipeline{
		config:     config,
		extractor:  headpose.NewExtractor(config.Headpose),
		orient:     filter.NewPair(config.Filter),
		confidence: filter.NewKalman(config.ConfidenceFilter),
		calibrator: calibration.New(config.Calibration),
		classifier: gesture.NewClassifier(config.Thresholds),
		debouncer:  gesture.NewDebouncer(config.Window, config.Cooldowns),
		scorer:     config.Scorer,
	}
}

// Process runs one frame. A nil face means the detector found nothing.
// Per-frame problems are absorbed here; only calibration failure and
// degradation reach listeners as signals.
func (p *Pipeline) Process(face *detector.FaceLandmarks, now time.Time) {
	p.mu.Lock()
	var out notifications
	p.process(face, now, &out)
	p.mu.Unlock()

	out.dispatch()
}

func (p *Pipeline) process(face *detector.FaceLandmarks, now time.Time, out *notifications) {
	p.frames++
	p.tick(now)

	stats := Stats{At: now, FacePresent: face != nil}

	o, confidence, usable := p.measure(face)
	stats.Confidence = confidence

	vote := gesture.None
	var corrected headpose.Orientation
	var outcome calibration.Outcome

	if usable {
		p.misses = 0
		p.lastFaceAt = now

		filtered := p.orient.Filter(o)
		corrected, outcome = p.calibrator.Correct(filtered, now)
		if outcome == calibration.Corrected {
			vote = p.classifier.Classify(corrected, p.debouncer.Last())
		}
		deg := corrected.Degrees()
		stats.Yaw, stats.Pitch = deg.Yaw, deg.Pitch
	} else {
		p.misses++
		if p.misses == p.config.LostTrackFrames {
			p.orient.Reset()
			p.confidence.Reset()
		}
		outcome = p.calibrator.Miss(now)
	}

	switch outcome {
	case calibration.Committed:
		profile, _ := p.calibrator.Profile()
		log.Info("calibration committed",
			"neutral_yaw", profile.NeutralYaw,
			"neutral_pitch", profile.NeutralPitch,
			"samples", profile.Samples,
			"spread", profile.Spread)
		out.calibrated(p.listeners.calibrated, profile)
	case calibration.TimedOut:
		err := p.calibrator.Err()
		log.Warn("calibration failed", "error", err)
		out.failed(p.listeners.failed, err)
	case calibration.Corrected:
		p.vote(vote, corrected, confidence, now, out)
	}

	if !p.degraded && p.misses > p.config.FailureBudget {
		p.degraded = true
		e := DegradedEvent{At: now, FailedFrames: p.misses, LastFaceSeenAt: p.lastFaceAt}
		log.Warn("tracking degraded", "failed_frames", p.misses)
		out.degraded(p.listeners.degraded, e)
	}

	stats.FPS = p.fps
	stats.Vote = vote
	stats.Gesture = p.debouncer.Last()
	stats.Calibration = p.calibrator.State()
	stats.Progress = p.calibrator.Progress()
	stats.Degraded = p.degraded
	out.stats(p.listeners.stats, stats)
}

// measure extracts the raw orientation and smoothed confidence of face and
// reports whether the frame is usable.
func (p *Pipeline) measure(face *detector.FaceLandmarks) (headpose.Orientation, float64, bool) {
	if face == nil {
		return headpose.Orientation{}, 0, false
	}

	o, err := p.extractor.Extract(face)
	if err != nil {
		log.Debug("feature extraction failed", "error", err)
		return headpose.Orientation{}, 0, false
	}

	confidence := p.confidence.Filter(p.scorer.Score(face))
	if confidence < p.classifier.Thresholds().ConfidenceMin {
		return o, confidence, false
	}
	return o, confidence, true
}

// vote feeds one classification into the debouncer and queues the event
// when the debounced gesture changes.
func (p *Pipeline) vote(vote gesture.Gesture, o headpose.Orientation, confidence float64, now time.Time, out *notifications) {
	if p.degraded {
		return
	}

	previous := p.debouncer.Last()
	g, changed := p.debouncer.Push(vote, now)
	if !changed {
		return
	}

	deg := o.Degrees()
	e := Event{
		Gesture:    g,
		Previous:   previous,
		At:         now,
		Yaw:        deg.Yaw,
		Pitch:      deg.Pitch,
		Confidence: confidence,
	}
	log.Debug("gesture changed", "gesture", g, "previous", previous)
	out.gesture(p.listeners.gesture, e)
}

// tick updates the frame rate estimate.
func (p *Pipeline) tick(now time.Time) {
	if !p.lastFrame.IsZero() {
		if dt := now.Sub(p.lastFrame); dt > 0 {
			instant := float64(time.Second) / float64(dt)
			if p.fps == 0 {
				p.fps = instant
			} else {
				p.fps += fpsSmoothing * (instant - p.fps)
			}
		}
	}
	p.lastFrame = now
}

// Recalibrate discards the current profile and starts a new countdown at now.
// A held gesture is released with a NONE event.
func (p *Pipeline) Recalibrate(now time.Time) {
	p.mu.Lock()
	var out notifications

	p.calibrator.Recalibrate(now)
	if last := p.debouncer.Last(); last != gesture.None {
		out.gesture(p.listeners.gesture, Event{Gesture: gesture.None, Previous: last, At: now})
	}
	p.debouncer.Reset()
	log.Info("recalibration requested")

	p.mu.Unlock()
	out.dispatch()
}

// Restore applies a previously committed profile, skipping sampling.
func (p *Pipeline) Restore(profile calibration.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.calibrator.Restore(profile); err != nil {
		return err
	}
	p.debouncer.Reset()
	log.Info("calibration restored",
		"neutral_yaw", profile.NeutralYaw,
		"neutral_pitch", profile.NeutralPitch)
	return nil
}

// Resume clears a degraded latch so gesture events flow again.
func (p *Pipeline) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.degraded {
		return
	}
	p.degraded = false
	p.misses = 0
	p.debouncer.Reset()
	log.Info("tracking resumed")
}

// Reset returns the pipeline to its freshly constructed state. Listeners stay
// registered. A held gesture is released with a NONE event.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	var out notifications

	if last := p.debouncer.Last(); last != gesture.None {
		out.gesture(p.listeners.gesture, Event{Gesture: gesture.None, Previous: last, At: p.lastFrame})
	}
	p.orient.Reset()
	p.confidence.Reset()
	p.calibrator.Reset()
	p.debouncer.Reset()
	p.misses = 0
	p.degraded = false
	p.lastFaceAt = time.Time{}
	p.lastFrame = time.Time{}
	p.fps = 0
	p.frames = 0

	p.mu.Unlock()
	out.dispatch()
}

// SetSensitivity scales calibrated orientation by k before classification.
func (p *Pipeline) SetSensitivity(k float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calibrator.SetSensitivity(k)
}

// SetThresholds replaces the classification thresholds.
func (p *Pipeline) SetThresholds(t gesture.Thresholds) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classifier.SetThresholds(t)
}

// Thresholds returns the active classification thresholds.
func (p *Pipeline) Thresholds() gesture.Thresholds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classifier.Thresholds()
}

// Last returns the last accepted gesture.
func (p *Pipeline) Last() gesture.Gesture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debouncer.Last()
}

// Degraded reports whether the degraded latch is set.
func (p *Pipeline) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Calibration: p.calibrator.State(),
		Progress:    p.calibrator.Progress(),
		Gesture:     p.debouncer.Last(),
		Degraded:    p.degraded,
		FPS:         p.fps,
		Frames:      p.frames,
	}
	if profile, ok := p.calibrator.Profile(); ok {
		s.Profile = &profile
	}
	if err := p.calibrator.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}
