package app

import (
	"errors"
	"time"

	"github.com/ayusman/headrun/internal/capture"
	"github.com/ayusman/headrun/internal/detector"
	"github.com/ayusman/headrun/internal/log"
)

// runPipeline is the frame loop. It alternates between two modes:
//
//  1. Active: every frame goes through the face detector and the gesture
//     pipeline at ActiveFPS.
//  2. Idle: after IdleTimeout without a face, only the motion detector runs,
//     at IdleFPS, until motion wakes the loop again.
//
// Frames are skipped entirely while detection is disabled.
func (a *App) runPipeline(stop <-chan struct{}) {
	defer a.wg.Done()

	active := a.IsActive()
	ticker := time.NewTicker(a.interval(active))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			a.processFrame(now)

			if mode := a.IsActive(); mode != active {
				active = mode
				ticker.Reset(a.interval(active))
			}
		}
	}
}

func (a *App) interval(active bool) time.Duration {
	if active {
		return time.Second / time.Duration(a.config.ActiveFPS)
	}
	return time.Second / time.Duration(a.config.IdleFPS)
}

// processFrame reads and handles one frame at now.
func (a *App) processFrame(now time.Time) {
	frame, err := a.Camera().ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrEndOfFrames) {
			log.Warn("error reading frame", "error", err)
		}
		return
	}
	defer frame.Close()

	if a.lastFaceAt.IsZero() {
		a.lastFaceAt = now
	}

	if !a.IsActive() {
		moved, changed := a.motion.Detect(frame)
		if !moved {
			return
		}
		log.Info("motion detected, switching to active mode", "changed_pct", changed)
		a.lastFaceAt = now
		a.setActive(true)
	}

	var face *detector.FaceLandmarks
	faces, err := a.Detector().Detect(frame)
	if err != nil {
		// A detector failure is an unusable frame, not a fatal error.
		log.Debug("face detection failed", "error", err)
	} else if len(faces) > 0 {
		face = &faces[0]
		a.lastFaceAt = now
	}

	a.pipeline.Process(face, now)

	if face == nil && a.config.IdleTimeout > 0 && now.Sub(a.lastFaceAt) >= a.config.IdleTimeout {
		log.Info("no face, switching to idle mode", "since", a.lastFaceAt)
		a.motion.Reset()
		a.setActive(false)
	}
}

func (a *App) setActive(active bool) {
	a.mu.Lock()
	a.active = active
	camera := a.camera
	a.mu.Unlock()

	if active {
		camera.SetFPS(a.config.ActiveFPS)
	} else {
		camera.SetFPS(a.config.IdleFPS)
	}
}
