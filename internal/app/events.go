package app

import (
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/log"
	"github.com/ayusman/headrun/internal/pipeline"
	"github.com/ayusman/headrun/internal/server"
)

// registerListeners connects pipeline signals to the configured sinks.
func (a *App) registerListeners() {
	a.pipeline.OnGesture(a.onGesture)
	a.pipeline.OnStats(a.onStats)
	a.pipeline.OnCalibrated(a.onCalibrated)
	a.pipeline.OnCalibrationFailed(a.onCalibrationFailed)
	a.pipeline.OnDegraded(a.onDegraded)
}

func (a *App) onGesture(e pipeline.Event) {
	log.Info("gesture", "gesture", e.Gesture, "previous", e.Previous)

	a.broadcast(server.MessageGesture, e)

	// MQTT and plugins can block, so they run on the action worker.
	select {
	case a.actions <- e:
	default:
		log.Warn("action queue full, dropping gesture", "gesture", e.Gesture)
	}
}

func (a *App) onStats(s pipeline.Stats) {
	if a.config.Hub == nil {
		return
	}
	if a.config.StatsInterval > 0 && !a.lastStatsAt.IsZero() && s.At.Sub(a.lastStatsAt) < a.config.StatsInterval {
		return
	}
	a.lastStatsAt = s.At
	a.broadcast(server.MessageStats, s)
}

func (a *App) onCalibrated(p calibration.Profile) {
	if err := a.saveProfile(p); err != nil {
		log.Error("failed to save calibration profile", "error", err)
	}

	a.broadcast(server.MessageCalibrated, p)
	if pub := a.config.Publisher; pub != nil {
		if err := pub.Calibrated(p); err != nil {
			log.Warn("failed to publish calibration", "error", err)
		}
	}
}

func (a *App) onCalibrationFailed(err error) {
	log.Warn("calibration failed", "error", err)

	a.broadcast(server.MessageCalibrationFailed, map[string]string{"error": err.Error()})
	if pub := a.config.Publisher; pub != nil {
		if perr := pub.CalibrationFailed(err, time.Now()); perr != nil {
			log.Warn("failed to publish calibration failure", "error", perr)
		}
	}
}

func (a *App) onDegraded(e pipeline.DegradedEvent) {
	a.broadcast(server.MessageDegraded, e)
	if pub := a.config.Publisher; pub != nil {
		if err := pub.Degraded(e); err != nil {
			log.Warn("failed to publish degraded", "error", err)
		}
	}
}

func (a *App) broadcast(msgType string, data any) {
	if a.config.Hub == nil {
		return
	}
	if err := a.config.Hub.Broadcast(msgType, data); err != nil {
		log.Warn("failed to broadcast", "type", msgType, "error", err)
	}
}
