package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/store"
)

// ProfileHandler handles HTTP requests for saved calibration profiles.
type ProfileHandler struct {
	store   *store.Store
	session Controller
}

// NewProfileHandler creates a ProfileHandler. session may be nil, in which
// case profiles cannot be applied.
func NewProfileHandler(s *store.Store, session Controller) *ProfileHandler {
	return &ProfileHandler{store: s, session: session}
}

// ServeHTTP routes /api/profiles, /api/profiles/{id} and
// /api/profiles/{id}/apply.
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := itemID(r.URL.Path, "/api/profiles")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/apply"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.apply(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, path)
	case http.MethodDelete:
		h.delete(w, r, path)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type profileResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	NeutralYaw   float64         `json:"neutral_yaw"`
	NeutralPitch float64         `json:"neutral_pitch"`
	Thresholds   json.RawMessage `json:"thresholds"`
	Sensitivity  float64         `json:"sensitivity"`
	Samples      int             `json:"samples"`
	Spread       float64         `json:"spread"`
	CalibratedAt string          `json:"calibrated_at"`
	CreatedAt    string          `json:"created_at"`
	ExpiresAt    string          `json:"expires_at,omitempty"`
	Expired      bool            `json:"expired"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
}

func toProfileResponse(p *store.Profile, now time.Time) profileResponse {
	thresholds := p.Thresholds
	if thresholds == nil {
		thresholds = json.RawMessage("{}")
	}
	return profileResponse{
		ID:           p.ID,
		Name:         p.Name,
		NeutralYaw:   p.NeutralYaw,
		NeutralPitch: p.NeutralPitch,
		Thresholds:   thresholds,
		Sensitivity:  p.Sensitivity,
		Samples:      p.Samples,
		Spread:       p.Spread,
		CalibratedAt: formatTime(p.CalibratedAt),
		CreatedAt:    formatTime(p.CreatedAt),
		ExpiresAt:    formatTime(p.ExpiresAt),
		Expired:      p.Expired(now),
	}
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.store.Profiles().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	now := time.Now()
	response := listProfilesResponse{
		Profiles: make([]profileResponse, 0, len(profiles)),
	}
	for _, p := range profiles {
		response.Profiles = append(response.Profiles, toProfileResponse(p, now))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	profile, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile, time.Now()))
}

// delete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Profiles().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// apply handles POST /api/profiles/{id}/apply, restoring the saved neutral
// pose into the running session.
func (h *ProfileHandler) apply(w http.ResponseWriter, r *http.Request, id string) {
	if h.session == nil {
		writeError(w, http.StatusServiceUnavailable, "No active session")
		return
	}

	profile, ok := h.lookup(w, id)
	if !ok {
		return
	}
	if profile.Expired(time.Now()) {
		writeError(w, http.StatusConflict, "Profile has expired")
		return
	}

	err := h.session.Restore(calibration.Profile{
		NeutralYaw:   profile.NeutralYaw,
		NeutralPitch: profile.NeutralPitch,
		Samples:      profile.Samples,
		Spread:       profile.Spread,
		CalibratedAt: profile.CalibratedAt,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.session.Status())
}

func (h *ProfileHandler) lookup(w http.ResponseWriter, id string) (*store.Profile, bool) {
	profile, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return nil, false
	}
	return profile, true
}
