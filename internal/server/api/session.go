package api

import (
	"net/http"
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/pipeline"
)

// Controller is the subset of the running pipeline the API drives.
// *pipeline.Pipeline implements it.
type Controller interface {
	Status() pipeline.Status
	Recalibrate(now time.Time)
	Restore(profile calibration.Profile) error
	Resume()
	Reset()
}

// SessionHandler serves calibration status and session controls.
type SessionHandler struct {
	session Controller
	now     func() time.Time
}

// NewSessionHandler creates a SessionHandler for session.
func NewSessionHandler(session Controller) *SessionHandler {
	return &SessionHandler{session: session, now: time.Now}
}

// Calibration handles /api/calibration. GET reports the pipeline status and
// POST starts a new calibration.
func (h *SessionHandler) Calibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.session.Status())
	case http.MethodPost:
		h.session.Recalibrate(h.now())
		writeJSON(w, http.StatusAccepted, h.session.Status())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Reset handles POST /api/session/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.session.Reset()
	writeJSON(w, http.StatusOK, h.session.Status())
}

// Resume handles POST /api/session/resume.
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.session.Resume()
	writeJSON(w, http.StatusOK, h.session.Status())
}
