package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MotionConfig tunes the frame-differencing motion detector.
type MotionConfig struct {
	// Threshold is the percentage of pixels that must change to count as motion.
	Threshold float64
	// BlurSize is the Gaussian kernel size; it must be odd.
	BlurSize int
	// PixelDelta is the grey-level change that marks a pixel as changed.
	PixelDelta float32
}

// DefaultMotionConfig returns a configuration that ignores sensor noise but
// wakes on a person sitting down.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		Threshold:  1.0,
		BlurSize:   21,
		PixelDelta: 25,
	}
}

// MotionDetector compares consecutive frames. The app uses it while idle to
// decide when to resume face detection.
type MotionDetector struct {
	config      MotionConfig
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. Invalid fields take defaults.
func NewMotionDetector(config MotionConfig) *MotionDetector {
	def := DefaultMotionConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.BlurSize <= 0 || config.BlurSize%2 == 0 {
		config.BlurSize = def.BlurSize
	}
	if config.PixelDelta <= 0 {
		config.PixelDelta = def.PixelDelta
	}
	return &MotionDetector{
		config:   config,
		prevGray: gocv.NewMat(),
	}
}

// Config returns the detector configuration.
func (m *MotionDetector) Config() MotionConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Detect compares frame with the previous one and reports whether motion
// exceeded the threshold, along with the percentage of changed pixels.
// The first frame only establishes a baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	size := m.config.BlurSize
	gocv.GaussianBlur(gray, &blurred, image.Point{X: size, Y: size}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, m.config.PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prevGray)

	return changed > m.config.Threshold, changed
}

// Reset drops the baseline so the next frame starts a new comparison.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}
