// Package app wires the camera, face detector and gesture pipeline together
// and fans accepted gestures out to plugins, the web UI and MQTT.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/capture"
	"github.com/ayusman/headrun/internal/detector"
	"github.com/ayusman/headrun/internal/gesture"
	"github.com/ayusman/headrun/internal/log"
	"github.com/ayusman/headrun/internal/pipeline"
	"github.com/ayusman/headrun/internal/plugin"
	"github.com/ayusman/headrun/internal/store"
)

// Frame loop defaults.
const (
	// IdleFPS is the frame rate while waiting for motion.
	IdleFPS = 5
	// ActiveFPS is the frame rate while tracking a face.
	ActiveFPS = 30
	// IdleTimeout is how long without a face before dropping to idle.
	IdleTimeout = 10 * time.Second
	// DefaultProfileName names the profile restored at start.
	DefaultProfileName = "default"
	// actionQueueSize bounds the gesture events waiting for plugins.
	actionQueueSize = 16
)

// Broadcaster sends typed messages to UI clients. *server.Hub implements it.
type Broadcaster interface {
	Broadcast(msgType string, data any) error
}

// EventPublisher forwards session events to an external bus.
// *publish.Publisher implements it.
type EventPublisher interface {
	Gesture(e pipeline.Event) error
	Calibrated(profile calibration.Profile) error
	CalibrationFailed(err error, at time.Time) error
	Degraded(e pipeline.DegradedEvent) error
}

// Config holds configuration options for the application.
type Config struct {
	Store     *store.Store
	PluginDir string
	Camera    capture.Config
	Motion    capture.MotionConfig
	Detector  detector.Config
	Pipeline  pipeline.Config

	// ProfileName is the calibration profile saved and restored.
	ProfileName string
	// ProfileTTL bounds how long a saved calibration is reused. 0 keeps
	// profiles forever.
	ProfileTTL time.Duration

	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration
	// StatsInterval throttles per-frame stats sent to the UI.
	StatsInterval time.Duration
	PluginTimeout time.Duration

	// Hub and Publisher are optional event sinks.
	Hub       Broadcaster
	Publisher EventPublisher
}

// DefaultConfig returns the default application configuration.
func DefaultConfig() Config {
	return Config{
		Camera:        capture.DefaultConfig(),
		Motion:        capture.DefaultMotionConfig(),
		Detector:      detector.DefaultConfig(),
		Pipeline:      pipeline.DefaultConfig(),
		ProfileName:   DefaultProfileName,
		ProfileTTL:    24 * time.Hour,
		IdleFPS:       IdleFPS,
		ActiveFPS:     ActiveFPS,
		IdleTimeout:   IdleTimeout,
		StatsInterval: 100 * time.Millisecond,
		PluginTimeout: 5 * time.Second,
	}
}

// App is the main application that runs the frame loop and dispatches
// accepted gestures.
type App struct {
	config     Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	detector   detector.Detector
	pipeline   *pipeline.Pipeline
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor
	actions    chan pipeline.Event

	mu          sync.RWMutex
	enabled     bool
	active      bool
	sensitivity float64
	stopCh      chan struct{}
	wg          sync.WaitGroup

	// Owned by the frame loop.
	lastFaceAt  time.Time
	lastStatsAt time.Time
}

// New creates a new App. Stored settings are applied to the pipeline
// configuration and the latest unexpired profile, if any, is restored.
func New(config Config) *App {
	def := DefaultConfig()
	if config.ProfileName == "" {
		config.ProfileName = def.ProfileName
	}
	if config.IdleFPS <= 0 {
		config.IdleFPS = def.IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = def.ActiveFPS
	}
	if config.PluginTimeout <= 0 {
		config.PluginTimeout = def.PluginTimeout
	}
	if config.Camera.FPS <= 0 {
		config.Camera.FPS = config.ActiveFPS
	}

	a := &App{
		camera:     capture.NewCamera(config.Camera),
		motion:     capture.NewMotionDetector(config.Motion),
		pluginMgr:  plugin.NewManager(config.PluginDir),
		pluginExec: plugin.NewExecutor(config.PluginTimeout),
		actions:    make(chan pipeline.Event, actionQueueSize),
		enabled:    true,
		active:     true,
	}

	a.loadSettings(&config.Pipeline, config.Store)
	a.config = config
	a.sensitivity = config.Pipeline.Calibration.Sensitivity
	a.pipeline = pipeline.New(config.Pipeline)
	a.registerListeners()

	// Try MediaPipe first, fall back to the mock detector.
	if mp, err := detector.NewMediaPipeDetector(config.Detector); err == nil {
		a.detector = mp
		log.Info("using MediaPipe face landmarker")
	} else {
		log.Warn("MediaPipe not available, using mock detector", "error", err)
		a.detector = detector.NewMockDetector()
	}

	if err := a.RestoreProfile(time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("failed to restore calibration profile", "error", err)
	}

	return a
}

// loadSettings overlays persisted settings onto cfg. Invalid values are
// logged and skipped.
func (a *App) loadSettings(cfg *pipeline.Config, s *store.Store) {
	if s == nil {
		return
	}

	settings, err := s.Settings().All()
	if err != nil {
		log.Warn("failed to load settings", "error", err)
		return
	}

	for key, value := range settings {
		if err := applyToConfig(cfg, key, value); err != nil {
			log.Warn("ignoring stored setting", "key", key, "value", value, "error", err)
		}
	}
}

func applyToConfig(cfg *pipeline.Config, key, value string) error {
	switch key {
	case store.SettingSensitivity:
		k, err := strconv.ParseFloat(value, 64)
		if err != nil || k <= 0 {
			return fmt.Errorf("invalid sensitivity %q", value)
		}
		cfg.Calibration.Sensitivity = k
	case store.SettingDeadZone:
		dz, err := strconv.ParseFloat(value, 64)
		if err != nil || dz < 0 {
			return fmt.Errorf("invalid dead zone %q", value)
		}
		cfg.Thresholds.DeadZone = dz
	case store.SettingWindow:
		n, err := strconv.Atoi(value)
		if err != nil || n < gesture.MinWindow || n > gesture.MaxWindow {
			return fmt.Errorf("invalid window %q", value)
		}
		cfg.Window = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// ApplySetting pushes a setting into the running session. The vote window
// only changes on the next start.
func (a *App) ApplySetting(key, value string) error {
	switch key {
	case store.SettingSensitivity:
		k, err := strconv.ParseFloat(value, 64)
		if err != nil || k <= 0 {
			return fmt.Errorf("invalid sensitivity %q", value)
		}
		a.mu.Lock()
		a.sensitivity = k
		a.mu.Unlock()
		a.pipeline.SetSensitivity(k)
	case store.SettingDeadZone:
		dz, err := strconv.ParseFloat(value, 64)
		if err != nil || dz < 0 {
			return fmt.Errorf("invalid dead zone %q", value)
		}
		t := a.pipeline.Thresholds()
		t.DeadZone = dz
		a.pipeline.SetThresholds(t)
	case store.SettingWindow:
		log.Info("vote window change applies after restart", "window", value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// RestoreProfile applies the newest unexpired saved profile. It returns
// store.ErrNotFound when there is none.
func (a *App) RestoreProfile(now time.Time) error {
	s := a.config.Store
	if s == nil {
		return store.ErrNotFound
	}

	if n, err := s.Profiles().DeleteExpired(now); err != nil {
		log.Warn("failed to prune expired profiles", "error", err)
	} else if n > 0 {
		log.Info("pruned expired profiles", "count", n)
	}

	saved, err := s.Profiles().Latest(a.config.ProfileName, now)
	if err != nil {
		return err
	}

	return a.pipeline.Restore(calibration.Profile{
		NeutralYaw:   saved.NeutralYaw,
		NeutralPitch: saved.NeutralPitch,
		Samples:      saved.Samples,
		Spread:       saved.Spread,
		CalibratedAt: saved.CalibratedAt,
	})
}

// saveProfile persists a freshly committed calibration.
func (a *App) saveProfile(p calibration.Profile) error {
	s := a.config.Store
	if s == nil {
		return nil
	}

	thresholds, err := json.Marshal(a.pipeline.Thresholds())
	if err != nil {
		return err
	}

	a.mu.RLock()
	sensitivity := a.sensitivity
	a.mu.RUnlock()

	saved := &store.Profile{
		Name:         a.config.ProfileName,
		NeutralYaw:   p.NeutralYaw,
		NeutralPitch: p.NeutralPitch,
		Thresholds:   thresholds,
		Sensitivity:  sensitivity,
		Samples:      p.Samples,
		Spread:       p.Spread,
		CalibratedAt: p.CalibratedAt,
	}
	if a.config.ProfileTTL > 0 {
		saved.ExpiresAt = p.CalibratedAt.Add(a.config.ProfileTTL)
	}

	if err := s.Profiles().Create(saved); err != nil {
		return err
	}
	log.Info("calibration profile saved", "id", saved.ID, "name", saved.Name)
	return nil
}

// SetEnabled enables or disables gesture detection.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// IsActive reports whether the loop is tracking (true) or waiting for
// motion (false).
func (a *App) IsActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// SetDetector sets the face detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// SetCamera replaces the camera. Call it before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// Start opens the camera and begins the frame loop and the action worker.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.active = true
	a.camera.SetFPS(a.config.ActiveFPS)

	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go a.runPipeline(a.stopCh)
	go a.runActions(a.stopCh)

	log.Info("detection pipeline started", "fps", a.config.ActiveFPS)
	return nil
}

// Stop halts the frame loop and releases the camera, motion detector and
// face detector.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh := a.stopCh
	a.stopCh = nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		a.wg.Wait()
	}

	if err := a.camera.Close(); err != nil {
		log.Warn("error closing camera", "error", err)
	}
	a.motion.Close()

	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			log.Warn("error closing detector", "error", err)
		}
	}

	log.Info("detection pipeline stopped")
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// Pipeline returns the gesture pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}
