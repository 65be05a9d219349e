package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/headrun/internal/app"
	"github.com/ayusman/headrun/internal/capture"
	"github.com/ayusman/headrun/internal/detector"
	"github.com/ayusman/headrun/internal/server"
	"github.com/ayusman/headrun/internal/store"
)

type harness struct {
	store    *store.Store
	app      *app.App
	detector *detector.MockDetector
	hub      *server.Hub
	ts       *httptest.Server
	client   *http.Client
}

func newHarness(t *testing.T, pluginDir string) *harness {
	t.Helper()

	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "headrun.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &harness{
		store:    s,
		detector: detector.NewMockDetector(),
		hub:      server.NewHub(),
	}

	config := app.DefaultConfig()
	config.Store = s
	config.PluginDir = pluginDir
	config.Pipeline.Calibration.Countdown = 0
	config.ActiveFPS = 100
	config.Hub = h.hub

	h.app = app.New(config)
	h.app.SetCamera(capture.NewMockCamera(nil, false))
	h.app.SetDetector(h.detector)
	if err := h.app.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}

	srv := server.New(server.Config{
		Store:        s,
		Session:      h.app.Pipeline(),
		Hub:          h.hub,
		Plugins:      h.app.PluginManager(),
		ApplySetting: h.app.ApplySetting,
	})
	h.ts = httptest.NewServer(srv)
	t.Cleanup(h.ts.Close)
	h.client = h.ts.Client()
	return h
}

func (h *harness) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := h.client.Get(h.ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := h.client.Post(h.ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	eventually(t, func() bool { return h.hub.Clients() == 1 })
	return conn
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitMessage reads events until one of msgType arrives.
func waitMessage(t *testing.T, conn *websocket.Conn, msgType string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg.Data
		}
	}
}

func face(yawDeg float64) []detector.FaceLandmarks {
	return []detector.FaceLandmarks{detector.TurnedFace(yawDeg, 0)}
}

func TestE2E_CalibrateAndGesture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t, t.TempDir())
	conn := h.dial(t)

	h.detector.SetFaces(face(0))
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.app.Stop()

	t.Run("Calibrates", func(t *testing.T) {
		waitMessage(t, conn, server.MessageCalibrated)

		var status struct {
			Calibration string `json:"calibration"`
			Profile     *struct {
				Samples int `json:"Samples"`
			} `json:"profile"`
		}
		h.getJSON(t, "/api/calibration", &status)
		if status.Calibration != "committed" {
			t.Errorf("calibration = %q, want committed", status.Calibration)
		}
		if status.Profile == nil {
			t.Error("committed status should carry the profile")
		}
	})

	t.Run("ProfileSaved", func(t *testing.T) {
		var list struct {
			Profiles []struct {
				Name    string `json:"name"`
				Expired bool   `json:"expired"`
			} `json:"profiles"`
		}
		eventually(t, func() bool {
			h.getJSON(t, "/api/profiles", &list)
			return len(list.Profiles) == 1
		})
		if list.Profiles[0].Name != app.DefaultProfileName || list.Profiles[0].Expired {
			t.Errorf("profile = %+v", list.Profiles[0])
		}
	})

	t.Run("TurnEmitsGesture", func(t *testing.T) {
		h.detector.SetFaces(face(-20))

		var e struct {
			Gesture string `json:"gesture"`
		}
		if err := json.Unmarshal(waitMessage(t, conn, server.MessageGesture), &e); err != nil {
			t.Fatalf("decode gesture: %v", err)
		}
		if e.Gesture != "MOVE_LEFT" {
			t.Errorf("gesture = %q, want MOVE_LEFT", e.Gesture)
		}
	})

	t.Run("Recalibrate", func(t *testing.T) {
		h.detector.SetFaces(face(0))
		resp := h.post(t, "/api/calibration", "")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("POST /api/calibration status = %d", resp.StatusCode)
		}
		waitMessage(t, conn, server.MessageCalibrated)

		eventually(t, func() bool {
			profiles, err := h.store.Profiles().List()
			return err == nil && len(profiles) == 2
		})
	})
}

func TestE2E_BindingRunsPlugin(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	plugins := t.TempDir()
	out := filepath.Join(t.TempDir(), "request.json")
	dir := filepath.Join(plugins, "recorder")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","actions":["key"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > " + out + ".tmp\nmv " + out + ".tmp " + out + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, plugins)

	resp := h.post(t, "/api/bindings", `{"gesture":"move_left","plugin_name":"recorder","action_name":"key","config":{"key":"a"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create binding status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp = h.post(t, "/api/bindings", `{"gesture":"MOVE_LEFT","plugin_name":"recorder","action_name":"fire"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported action status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	h.detector.SetFaces(face(0))
	if err := h.app.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.app.Stop()

	eventually(t, func() bool {
		var status struct {
			Calibration string `json:"calibration"`
		}
		h.getJSON(t, "/api/calibration", &status)
		return status.Calibration == "committed"
	})
	h.detector.SetFaces(face(-20))

	var data []byte
	eventually(t, func() bool {
		var err error
		data, err = os.ReadFile(out)
		return err == nil
	})

	var req struct {
		Gesture string          `json:"gesture"`
		Config  json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if req.Gesture != "MOVE_LEFT" {
		t.Errorf("request gesture = %q, want MOVE_LEFT", req.Gesture)
	}
	if !strings.Contains(string(req.Config), `"a"`) {
		t.Errorf("request config = %s", req.Config)
	}
}

func TestE2E_HealthAndSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	h := newHarness(t, t.TempDir())

	var health map[string]any
	h.getJSON(t, "/api/health", &health)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}

	req, _ := http.NewRequest(http.MethodPut, h.ts.URL+"/api/settings", strings.NewReader(`{"sensitivity":"2"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("PUT /api/settings error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT /api/settings status = %d", resp.StatusCode)
	}

	v, err := h.store.Settings().Get(store.SettingSensitivity)
	if err != nil || v != "2" {
		t.Errorf("stored sensitivity = %q, %v", v, err)
	}
}
