package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ayusman/headrun/internal/calibration"
	"github.com/ayusman/headrun/internal/pipeline"
	"github.com/ayusman/headrun/internal/store"
)

type stubSession struct {
	status      pipeline.Status
	recalibrate []time.Time
	restored    []calibration.Profile
	restoreErr  error
	resets      int
	resumes     int
}

func (s *stubSession) Status() pipeline.Status { return s.status }

func (s *stubSession) Recalibrate(now time.Time) {
	s.recalibrate = append(s.recalibrate, now)
	s.status.Calibration = calibration.StateCountdown
}

func (s *stubSession) Restore(p calibration.Profile) error {
	if s.restoreErr != nil {
		return s.restoreErr
	}
	s.restored = append(s.restored, p)
	s.status.Calibration = calibration.StateCommitted
	return nil
}

func (s *stubSession) Resume() { s.resumes++ }
func (s *stubSession) Reset()  { s.resets++ }

func TestSessionHandler_Calibration(t *testing.T) {
	session := &stubSession{status: pipeline.Status{Calibration: calibration.StateCommitted, FPS: 29.5}}
	h := NewSessionHandler(session)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }
	calib := http.HandlerFunc(h.Calibration)

	rec := serve(calib, http.MethodGet, "/api/calibration", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	var status map[string]any
	json.NewDecoder(rec.Body).Decode(&status)
	if status["calibration"] != "committed" || status["fps"] != 29.5 {
		t.Errorf("status = %v", status)
	}

	rec = serve(calib, http.MethodPost, "/api/calibration", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(session.recalibrate) != 1 || !session.recalibrate[0].Equal(now) {
		t.Errorf("Recalibrate calls = %v, want [%v]", session.recalibrate, now)
	}

	if rec := serve(calib, http.MethodDelete, "/api/calibration", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestSessionHandler_ResetResume(t *testing.T) {
	session := &stubSession{}
	h := NewSessionHandler(session)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		want    int
	}{
		{"reset", h.Reset, http.MethodPost, http.StatusOK},
		{"reset wrong method", h.Reset, http.MethodGet, http.StatusMethodNotAllowed},
		{"resume", h.Resume, http.MethodPost, http.StatusOK},
		{"resume wrong method", h.Resume, http.MethodPut, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := serve(tt.handler, tt.method, "/api/session", ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if session.resets != 1 || session.resumes != 1 {
		t.Errorf("resets = %d, resumes = %d, want 1 and 1", session.resets, session.resumes)
	}
}

func TestProfileHandler(t *testing.T) {
	s := newTestStore(t)
	session := &stubSession{}
	h := NewProfileHandler(s, session)

	p := &store.Profile{
		Name:         "default",
		NeutralYaw:   -0.05,
		NeutralPitch: 0.02,
		Samples:      30,
		CalibratedAt: time.Now().Add(-time.Minute),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := s.Profiles().Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("list", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/profiles", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp listProfilesResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if len(resp.Profiles) != 1 || resp.Profiles[0].ID != p.ID {
			t.Fatalf("profiles = %+v", resp.Profiles)
		}
		if resp.Profiles[0].Expired || resp.Profiles[0].ExpiresAt == "" {
			t.Errorf("profile = %+v, want unexpired with expires_at", resp.Profiles[0])
		}
	})

	t.Run("apply failure", func(t *testing.T) {
		session.restoreErr = errors.New("invalid calibration profile")
		defer func() { session.restoreErr = nil }()

		if rec := serve(h, http.MethodPost, "/api/profiles/"+p.ID+"/apply", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("apply", func(t *testing.T) {
		if rec := serve(h, http.MethodPost, "/api/profiles/"+p.ID+"/apply", ""); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if len(session.restored) != 1 || session.restored[0].NeutralYaw != -0.05 {
			t.Errorf("restored = %+v", session.restored)
		}
	})

	t.Run("apply wrong method", func(t *testing.T) {
		if rec := serve(h, http.MethodGet, "/api/profiles/"+p.ID+"/apply", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})

	t.Run("create not allowed", func(t *testing.T) {
		if rec := serve(h, http.MethodPost, "/api/profiles", "{}"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rec := serve(h, http.MethodDelete, "/api/profiles/"+p.ID, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
		}
		if rec := serve(h, http.MethodGet, "/api/profiles/"+p.ID, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET after delete status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestProfileHandler_NoSession(t *testing.T) {
	s := newTestStore(t)
	h := NewProfileHandler(s, nil)

	if rec := serve(h, http.MethodPost, "/api/profiles/any/apply", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
