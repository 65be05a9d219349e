// Command headrun turns head movements seen by the webcam into game controls.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/ayusman/headrun/internal/app"
	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/log"
	"github.com/ayusman/headrun/internal/pipeline"
	"github.com/ayusman/headrun/internal/publish"
	"github.com/ayusman/headrun/internal/server"
	"github.com/ayusman/headrun/internal/store"
	"github.com/ayusman/headrun/internal/tray"
)

type options struct {
	addr        string
	camera      int
	db          string
	plugins     string
	mqtt        string
	mqttTopic   string
	mirror      bool
	sensitivity float64
	logLevel    string
	tray        bool
	profileTTL  time.Duration
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("headrun", flag.ContinueOnError)
	fs.StringVar(&o.addr, "addr", ":8080", "HTTP listen address")
	fs.IntVar(&o.camera, "camera", 0, "camera device ID")
	fs.StringVar(&o.db, "db", "", "sqlite database path (default ~/.headrun/headrun.db)")
	fs.StringVar(&o.plugins, "plugins", "", "plugin directory (default ~/.headrun/plugins or ./plugins)")
	fs.StringVar(&o.mqtt, "mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	fs.StringVar(&o.mqttTopic, "mqtt-topic", publish.DefaultConfig().Topic, "MQTT topic prefix")
	fs.BoolVar(&o.mirror, "mirror", true, "flip camera frames horizontally")
	fs.Float64Var(&o.sensitivity, "sensitivity", 0, "gesture sensitivity multiplier (0 keeps the stored setting)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&o.tray, "tray", false, "show the system tray menu")
	fs.DurationVar(&o.profileTTL, "profile-ttl", 24*time.Hour, "how long a saved calibration is reused (0 = forever)")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.sensitivity < 0 {
		return o, fmt.Errorf("sensitivity must not be negative")
	}
	if o.profileTTL < 0 {
		return o, fmt.Errorf("profile-ttl must not be negative")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.Init(opts.logLevel)
	if err := run(opts); err != nil {
		log.Error("headrun failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	dataDir, err := dataDir()
	if err != nil {
		return err
	}

	dbPath := opts.db
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "headrun.db")
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()
	log.Info("store opened", "path", st.Path())

	hub := server.NewHub()

	config := app.DefaultConfig()
	config.Store = st
	config.PluginDir = pluginDir(opts.plugins, dataDir)
	config.Camera.DeviceID = opts.camera
	config.Camera.Mirror = opts.mirror
	config.ProfileTTL = opts.profileTTL
	config.Hub = hub

	if opts.mqtt != "" {
		mqttConfig := publish.DefaultConfig()
		mqttConfig.Broker = opts.mqtt
		mqttConfig.Topic = opts.mqttTopic
		pub, err := publish.Connect(mqttConfig)
		if err != nil {
			log.Warn("mqtt disabled", "error", err)
		} else {
			defer pub.Close()
			config.Publisher = pub
		}
	}

	a := app.New(config)
	if opts.sensitivity > 0 {
		if err := a.ApplySetting(store.SettingSensitivity, strconv.FormatFloat(opts.sensitivity, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if err := a.DiscoverPlugins(); err != nil {
		log.Warn("plugin discovery failed", "dir", config.PluginDir, "error", err)
	}
	if err := a.Start(); err != nil {
		return fmt.Errorf("start detection: %w", err)
	}
	defer a.Stop()

	webDir := findWebDir(dataDir)
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir:    webDir,
		Store:        st,
		Session:      a.Pipeline(),
		Hub:          hub,
		Plugins:      a.PluginManager(),
		ApplySetting: a.ApplySetting,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", opts.addr)
		if err := srv.ListenAndServe(opts.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if opts.tray {
		t := newTray(a, settingsURL(opts.addr), stop)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// systray must own the main goroutine on macOS.
		t.Run()
		stop()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newTray builds the tray menu and keeps it in sync with the pipeline.
func newTray(a *app.App, url string, quit func()) *tray.Tray {
	t := tray.New()
	p := a.Pipeline()

	t.OnToggle(a.SetEnabled)
	t.OnRecalibrate(func() { p.Recalibrate(time.Now()) })
	t.OnResume(func() {
		p.Resume()
		t.SetStatus(p.Status().Calibration.String(), false)
	})
	t.OnSettings(func() {
		if err := openBrowser(url); err != nil {
			log.Warn("failed to open browser", "url", url, "error", err)
		}
	})
	t.OnQuit(quit)

	p.OnGesture(func(e pipeline.Event) { t.SetLastGesture(e.Gesture.String()) })
	p.OnCalibrated(func(calibration.Profile) { t.SetStatus(calibration.StateCommitted.String(), false) })
	p.OnCalibrationFailed(func(error) { t.SetStatus(calibration.StateFailed.String(), false) })
	p.OnDegraded(func(pipeline.DegradedEvent) { t.SetStatus(p.Status().Calibration.String(), true) })

	status := p.Status()
	t.SetStatus(status.Calibration.String(), status.Degraded)
	return t
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	dir := filepath.Join(home, ".headrun")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// pluginDir prefers an explicit flag, then ~/.headrun/plugins, then ./plugins.
func pluginDir(flagValue, dataDir string) string {
	if flagValue != "" {
		return flagValue
	}
	installed := filepath.Join(dataDir, "plugins")
	if info, err := os.Stat(installed); err == nil && info.IsDir() {
		return installed
	}
	if info, err := os.Stat("plugins"); err == nil && info.IsDir() {
		if abs, err := filepath.Abs("plugins"); err == nil {
			return abs
		}
		return "plugins"
	}
	return installed
}

// findWebDir searches for the web directory in common locations.
// It checks "web", "../web", "../../web" and the data directory.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}

func settingsURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
