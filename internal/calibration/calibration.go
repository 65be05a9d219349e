// Package calibration records a user's neutral head pose and corrects later
// orientation samples against it.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/headrun/internal/headpose"
)

// ErrCalibrationTimeout is returned when sampling ends without enough valid
// samples, including an attempt to commit an empty buffer.
var ErrCalibrationTimeout = errors.New("calibration timed out without enough samples")

// ErrInvalidProfile is returned by Restore for a profile that cannot be applied.
var ErrInvalidProfile = errors.New("invalid calibration profile")

// State is the calibration phase.
type State int

const (
	// StateCountdown is the "get ready" window before sampling starts.
	StateCountdown State = iota
	// StateSampling collects neutral-pose samples.
	StateSampling
	// StateCommitted holds a committed neutral pose.
	StateCommitted
	// StateFailed is entered on timeout; Recalibrate leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCountdown:
		return "countdown"
	case StateSampling:
		return "sampling"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome reports what a frame did to the calibrator.
type Outcome int

const (
	// Pending means the calibrator is still counting down or sampling.
	Pending Outcome = iota
	// Committed means this frame completed calibration.
	Committed
	// Corrected means the sample was corrected against the committed profile.
	Corrected
	// TimedOut means this frame exhausted the sampling budget.
	TimedOut
	// Failed means calibration already failed and awaits Recalibrate.
	Failed
)

// Profile is a committed neutral pose.
type Profile struct {
	NeutralYaw   float64   `json:"neutral_yaw"`
	NeutralPitch float64   `json:"neutral_pitch"`
	Samples      int       `json:"samples"`
	Spread       float64   `json:"spread"`
	CalibratedAt time.Time `json:"calibrated_at"`
}

// Neutral returns the neutral pose as an orientation.
func (p Profile) Neutral() headpose.Orientation {
	return headpose.Orientation{Yaw: p.NeutralYaw, Pitch: p.NeutralPitch}
}

// Config holds calibration parameters.
type Config struct {
	// TargetSamples is the number of valid samples averaged into the profile.
	TargetSamples int
	// Countdown is the "get ready" window before sampling starts.
	Countdown time.Duration
	// Timeout bounds the sampling phase in wall-clock time. 0 disables.
	Timeout time.Duration
	// MaxFrames bounds the sampling phase in frames, valid or not. 0 disables.
	MaxFrames int
	// Sensitivity multiplies corrected samples.
	Sensitivity float64
}

// DefaultConfig returns calibration defaults: 30 samples after a one second
// countdown, failing after five seconds of sampling.
func DefaultConfig() Config {
	return Config{
		TargetSamples: 30,
		Countdown:     time.Second,
		Timeout:       5 * time.Second,
		Sensitivity:   1.0,
	}
}

// Calibrator is the per-session calibration state machine.
// It is not safe for concurrent use.
type Calibrator struct {
	config    Config
	state     State
	phaseAt   time.Time
	frames    int
	yaws      []float64
	pitches   []float64
	profile   Profile
	lastError error
}

// New creates a Calibrator in the countdown state. The countdown starts on the
// first frame it sees.
func New(config Config) *Calibrator {
	if config.TargetSamples <= 0 {
		config.TargetSamples = 1
	}
	if config.Sensitivity <= 0 {
		config.Sensitivity = 1
	}
	c := &Calibrator{config: config}
	c.Reset()
	return c
}

// State returns the current phase.
func (c *Calibrator) State() State {
	return c.state
}

// IsCalibrated reports whether a profile is committed.
func (c *Calibrator) IsCalibrated() bool {
	return c.state == StateCommitted
}

// Profile returns the committed profile and whether one exists.
func (c *Calibrator) Profile() (Profile, bool) {
	return c.profile, c.state == StateCommitted
}

// SampleCount returns the number of buffered samples.
func (c *Calibrator) SampleCount() int {
	return len(c.yaws)
}

// Progress returns sampling progress in [0,1].
func (c *Calibrator) Progress() float64 {
	switch c.state {
	case StateCommitted:
		return 1
	case StateSampling:
		return float64(len(c.yaws)) / float64(c.config.TargetSamples)
	default:
		return 0
	}
}

// Err returns the error that put the calibrator in StateFailed.
func (c *Calibrator) Err() error {
	return c.lastError
}

// SetSensitivity changes the multiplier applied to corrected samples.
func (c *Calibrator) SetSensitivity(k float64) {
	if k > 0 {
		c.config.Sensitivity = k
	}
}

// Reset returns to the freshly constructed state.
func (c *Calibrator) Reset() {
	c.state = StateCountdown
	c.phaseAt = time.Time{}
	c.frames = 0
	c.yaws = make([]float64, 0, c.config.TargetSamples)
	c.pitches = make([]float64, 0, c.config.TargetSamples)
	c.profile = Profile{}
	c.lastError = nil
}

// Recalibrate discards any profile and restarts the countdown at now.
func (c *Calibrator) Recalibrate(now time.Time) {
	c.Reset()
	c.phaseAt = now
}

// Restore installs a previously committed profile.
func (c *Calibrator) Restore(p Profile) error {
	if math.IsNaN(p.NeutralYaw) || math.IsNaN(p.NeutralPitch) || p.Samples <= 0 {
		return ErrInvalidProfile
	}
	c.Reset()
	c.profile = p
	c.state = StateCommitted
	return nil
}

// Correct handles one valid filtered sample. While counting down or sampling
// it returns o unchanged (appending it when sampling); once committed it
// returns o relative to the neutral pose, scaled by the sensitivity.
// Call it at most once per frame.
func (c *Calibrator) Correct(o headpose.Orientation, now time.Time) (headpose.Orientation, Outcome) {
	switch c.state {
	case StateCommitted:
		return o.Sub(c.profile.Neutral()).Scale(c.config.Sensitivity), Corrected
	case StateFailed:
		return o, Failed
	}

	if !c.advance(now) {
		return o, Pending
	}
	if c.expired(now) {
		return o, TimedOut
	}

	c.yaws = append(c.yaws, o.Yaw)
	c.pitches = append(c.pitches, o.Pitch)

	if len(c.yaws) >= c.config.TargetSamples {
		if _, err := c.commit(now); err != nil {
			return o, TimedOut
		}
		return o, Committed
	}
	return o, Pending
}

// Miss records a frame without a usable sample. It returns TimedOut when
// that frame exhausts the sampling budget.
func (c *Calibrator) Miss(now time.Time) Outcome {
	switch c.state {
	case StateCommitted:
		return Corrected
	case StateFailed:
		return Failed
	}
	if !c.advance(now) {
		return Pending
	}
	if c.expired(now) {
		return TimedOut
	}
	return Pending
}

// Commit averages the buffered samples into a profile. It fails with
// ErrCalibrationTimeout when no samples were collected.
func (c *Calibrator) Commit(now time.Time) (Profile, error) {
	if c.state == StateCommitted {
		return c.profile, nil
	}
	return c.commit(now)
}

func (c *Calibrator) commit(now time.Time) (Profile, error) {
	if len(c.yaws) == 0 {
		c.fail(ErrCalibrationTimeout)
		return Profile{}, ErrCalibrationTimeout
	}

	p := Profile{
		NeutralYaw:   stat.Mean(c.yaws, nil),
		NeutralPitch: stat.Mean(c.pitches, nil),
		Samples:      len(c.yaws),
		CalibratedAt: now,
	}
	if len(c.yaws) > 1 {
		p.Spread = math.Hypot(stat.StdDev(c.yaws, nil), stat.StdDev(c.pitches, nil))
	}

	c.profile = p
	c.state = StateCommitted
	c.yaws = nil
	c.pitches = nil
	return p, nil
}

// advance moves from countdown to sampling and reports whether the
// calibrator is sampling.
func (c *Calibrator) advance(now time.Time) bool {
	if c.phaseAt.IsZero() {
		c.phaseAt = now
	}
	if c.state == StateCountdown {
		if now.Sub(c.phaseAt) < c.config.Countdown {
			return false
		}
		c.state = StateSampling
		c.phaseAt = now
		c.frames = 0
	}
	c.frames++
	return true
}

// expired fails the calibration when the sampling budget is spent.
func (c *Calibrator) expired(now time.Time) bool {
	overTime := c.config.Timeout > 0 && now.Sub(c.phaseAt) > c.config.Timeout
	overFrames := c.config.MaxFrames > 0 && c.frames > c.config.MaxFrames
	if !overTime && !overFrames {
		return false
	}
	c.fail(fmt.Errorf("%w: %d of %d samples after %d frames",
		ErrCalibrationTimeout, len(c.yaws), c.config.TargetSamples, c.frames))
	return true
}

func (c *Calibrator) fail(err error) {
	c.state = StateFailed
	c.lastError = err
	c.yaws = c.yaws[:0]
	c.pitches = c.pitches[:0]
}
