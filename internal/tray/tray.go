// Package tray provides the system tray menu for headrun.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle      func(enabled bool)
	onRecalibrate func()
	onResume      func()
	onSettings    func()
	onQuit        func()
	enabled       bool
	lastGesture   string
	status        string
	degraded      bool
	mu            sync.RWMutex

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuLastGesture *systray.MenuItem
	menuStatus      *systray.MenuItem
	menuResume      *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  "calibrating",
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnRecalibrate sets the callback for the Recalibrate item.
func (t *Tray) OnRecalibrate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecalibrate = fn
}

// OnResume sets the callback for the Resume Tracking item, shown while the
// session is degraded.
func (t *Tray) OnResume(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResume = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("headrun")
	systray.SetTooltip("headrun head-gesture control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle gesture control")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Calibration status")
	t.menuStatus.Disable()
	t.menuLastGesture = systray.AddMenuItem(gestureTitle(t.lastGesture), "Last accepted gesture")
	t.menuLastGesture.Disable()
	systray.AddSeparator()

	menuRecalibrate := systray.AddMenuItem("Recalibrate", "Sample a new neutral pose")
	t.menuResume = systray.AddMenuItem("Resume Tracking", "Resume after tracking was lost")
	if !t.degraded {
		t.menuResume.Hide()
	}
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit headrun")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuRecalibrate.ClickedCh:
				t.call(func() func() { return t.onRecalibrate })
			case <-t.menuResume.ClickedCh:
				t.call(func() func() { return t.onResume })
			case <-menuSettings.ClickedCh:
				t.call(func() func() { return t.onSettings })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastGesture = name
	if t.menuLastGesture != nil {
		t.menuLastGesture.SetTitle(gestureTitle(name))
	}
}

// SetStatus updates the calibration line and shows Resume Tracking while
// degraded.
func (t *Tray) SetStatus(calibration string, degraded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = calibration
	t.degraded = degraded
	if t.menuStatus != nil {
		if degraded {
			t.menuStatus.SetTitle("Tracking lost")
		} else {
			t.menuStatus.SetTitle(statusTitle(calibration))
		}
	}
	if t.menuResume != nil {
		if degraded {
			t.menuResume.Show()
		} else {
			t.menuResume.Hide()
		}
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Status returns the last calibration status and degraded flag.
func (t *Tray) Status() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status, t.degraded
}

// LastGesture returns the last gesture shown.
func (t *Tray) LastGesture() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastGesture
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Disabled"
}

func gestureTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}

func statusTitle(status string) string {
	return "Calibration: " + status
}
