package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/ayusman/headrun/internal/gesture"
	"github.com/ayusman/headrun/internal/store"
)

// Applier pushes a validated setting into the running session.
type Applier func(key, value string) error

// SettingsHandler handles GET and PUT on /api/settings.
type SettingsHandler struct {
	store *store.Store
	apply Applier
}

// NewSettingsHandler creates a SettingsHandler. apply may be nil.
func NewSettingsHandler(s *store.Store, apply Applier) *SettingsHandler {
	return &SettingsHandler{store: s, apply: apply}
}

type settingsResponse struct {
	Settings map[string]string `json:"settings"`
}

// ServeHTTP implements http.Handler.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) list(w http.ResponseWriter) {
	settings, err := h.store.Settings().All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: settings})
}

// update stores every key in the request body. The request is rejected as a
// whole if any key is unknown or any value is out of range.
func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	keys := make([]string, 0, len(req))
	for key, value := range req {
		if err := ValidateSetting(key, value); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := h.store.Settings().Set(key, req[key]); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
		if h.apply != nil {
			if err := h.apply(key, req[key]); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}

	h.list(w)
}

// ValidateSetting checks that value is acceptable for key.
func ValidateSetting(key, value string) error {
	switch key {
	case store.SettingSensitivity:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%s must be a positive number", key)
		}
	case store.SettingDeadZone:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f >= 1 {
			return fmt.Errorf("%s must be in [0, 1)", key)
		}
	case store.SettingWindow:
		n, err := strconv.Atoi(value)
		if err != nil || n < gesture.MinWindow || n > gesture.MaxWindow {
			return fmt.Errorf("%s must be an integer in [%d, %d]", key, gesture.MinWindow, gesture.MaxWindow)
		}
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
