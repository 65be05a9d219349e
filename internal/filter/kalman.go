// Package filter smooths per-frame scalar signals with a one-dimensional Kalman filter.
package filter

// Config holds tunable parameters for the Kalman filter.
type Config struct {
	// ProcessNoise (q) is added to the uncertainty on every predict step.
	ProcessNoise float64

	// MeasurementNoise (r) is the assumed variance of each measurement.
	MeasurementNoise float64

	// InitialUncertainty is the error covariance after construction and Reset.
	InitialUncertainty float64

	// VelocityDamping enables the extended variant: after each update the
	// change since the previous estimate is added back scaled by this factor,
	// giving a small predictive lead. 0 keeps the basic filter.
	VelocityDamping float64
}

// DefaultConfig returns a responsive configuration for head orientation.
// With q == r the steady-state gain settles near 0.62.
func DefaultConfig() Config {
	return Config{
		ProcessNoise:       0.05,
		MeasurementNoise:   0.05,
		InitialUncertainty: 1.0,
	}
}

// ConfidenceConfig returns a slower configuration for the confidence score,
// so the confidence gate does not flap on single frames.
func ConfidenceConfig() Config {
	return Config{
		ProcessNoise:       0.01,
		MeasurementNoise:   0.1,
		InitialUncertainty: 1.0,
	}
}

// Kalman is a scalar Kalman filter with no explicit motion model.
type Kalman struct {
	config      Config
	value       float64
	uncertainty float64
	velocity    float64
	gain        float64
}

// NewKalman creates a filter starting at zero with the configured uncertainty.
func NewKalman(config Config) *Kalman {
	return &Kalman{
		config:      config,
		uncertainty: config.InitialUncertainty,
	}
}

// Filter folds one measurement into the estimate and returns the new estimate.
func (k *Kalman) Filter(measurement float64) float64 {
	previous := k.value

	// Predict
	k.uncertainty += k.config.ProcessNoise

	// Update
	k.gain = k.uncertainty / (k.uncertainty + k.config.MeasurementNoise)
	k.value += k.gain * (measurement - k.value)
	k.uncertainty *= 1 - k.gain

	if k.config.VelocityDamping > 0 {
		k.velocity = k.value - previous
		k.value += k.velocity * k.config.VelocityDamping
	}

	return k.value
}

// Value returns the current estimate without updating.
func (k *Kalman) Value() float64 {
	return k.value
}

// Uncertainty returns the current error covariance.
func (k *Kalman) Uncertainty() float64 {
	return k.uncertainty
}

// Gain returns the gain used by the most recent Filter call.
func (k *Kalman) Gain() float64 {
	return k.gain
}

// Reset drops all history, used when tracking is lost and reacquired.
func (k *Kalman) Reset() {
	k.value = 0
	k.velocity = 0
	k.gain = 0
	k.uncertainty = k.config.InitialUncertainty
}
