// Package server provides the HTTP server for headrun: the JSON API, the
// websocket event stream and the static web UI.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/headrun/internal/server/api"
	"github.com/ayusman/headrun/internal/store"
)

// Config holds the server configuration. Routes whose dependencies are nil
// are not registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   api.Controller
	Hub       *Hub
	Plugins   api.PluginLookup
	// ApplySetting pushes updated settings into the running session.
	ApplySetting api.Applier
}

// Server represents the HTTP server for the headrun application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		bindings := api.NewBindingHandler(s.config.Store, s.config.Plugins)
		s.mux.Handle("/api/bindings", bindings)
		s.mux.Handle("/api/bindings/", bindings)

		profiles := api.NewProfileHandler(s.config.Store, s.config.Session)
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)

		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store, s.config.ApplySetting))
	}

	if s.config.Session != nil {
		session := api.NewSessionHandler(s.config.Session)
		s.mux.HandleFunc("/api/calibration", session.Calibration)
		s.mux.HandleFunc("/api/session/reset", session.Reset)
		s.mux.HandleFunc("/api/session/resume", session.Resume)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/events", s.config.Hub)
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Session != nil {
		status := s.config.Session.Status()
		response["calibration"] = status.Calibration
		response["degraded"] = status.Degraded
	}
	if s.config.Hub != nil {
		response["clients"] = s.config.Hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on addr and blocks until it stops.
// It returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
