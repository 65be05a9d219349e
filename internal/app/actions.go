package app

import (
	"context"
	"errors"

	"github.com/ayusman/headrun/internal/log"
	"github.com/ayusman/headrun/internal/pipeline"
	"github.com/ayusman/headrun/internal/plugin"
)

// runActions publishes accepted gestures and executes their bound plugin
// actions one gesture at a time, so key presses reach the game in the order
// the gestures were accepted.
func (a *App) runActions(stop <-chan struct{}) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	for {
		select {
		case <-stop:
			return
		case e := <-a.actions:
			a.deliver(ctx, e)
		}
	}
}

// deliver sends e to the MQTT publisher, if any, and then to the bound plugins.
func (a *App) deliver(ctx context.Context, e pipeline.Event) {
	if p := a.config.Publisher; p != nil {
		if err := p.Gesture(e); err != nil {
			log.Warn("failed to publish gesture", "error", err)
		}
	}
	a.executeActions(ctx, e)
}

// executeActions runs every enabled binding for e.Gesture and returns how
// many plugin calls succeeded.
func (a *App) executeActions(ctx context.Context, e pipeline.Event) int {
	s := a.config.Store
	if s == nil {
		return 0
	}

	bindings, err := s.Bindings().ListByGesture(e.Gesture.String())
	if err != nil {
		log.Error("failed to load bindings", "gesture", e.Gesture, "error", err)
		return 0
	}

	succeeded := 0
	for _, b := range bindings {
		p, err := a.pluginMgr.Get(b.PluginName)
		if err != nil {
			log.Warn("bound plugin not found", "binding", b.ID, "plugin", b.PluginName)
			continue
		}
		if !p.Manifest.HasAction(b.ActionName) {
			log.Warn("plugin does not support action", "plugin", b.PluginName, "action", b.ActionName)
			continue
		}

		req := &plugin.Request{
			Action:   b.ActionName,
			Gesture:  e.Gesture.String(),
			Previous: e.Previous.String(),
			At:       e.At,
			Config:   b.Config,
			Params:   []byte("{}"),
		}

		resp, err := a.pluginExec.Execute(ctx, p, req)
		switch {
		case errors.Is(err, plugin.ErrTimeout):
			log.Warn("plugin timed out", "plugin", b.PluginName, "timeout", a.pluginExec.Timeout())
		case err != nil:
			log.Warn("plugin failed", "plugin", b.PluginName, "error", err)
		case !resp.Success:
			log.Warn("plugin reported an error", "plugin", b.PluginName, "error", resp.Error)
		default:
			succeeded++
			log.Debug("plugin action executed", "plugin", b.PluginName, "action", b.ActionName, "gesture", e.Gesture)
		}
	}
	return succeeded
}
