package store

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

var calibratedAt = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func TestProfileRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	p := &Profile{
		Name:         "default",
		NeutralYaw:   0.12,
		NeutralPitch: -0.04,
		Thresholds:   json.RawMessage(`{"yaw_left":-0.5}`),
		Samples:      30,
		Spread:       0.02,
		CalibratedAt: calibratedAt,
		ExpiresAt:    calibratedAt.Add(24 * time.Hour),
	}
	if err := repo.Create(p); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	if p.ID == "" {
		t.Fatal("ID should be generated")
	}
	if p.Sensitivity != 1 {
		t.Errorf("Sensitivity default = %v, want 1", p.Sensitivity)
	}

	got, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("failed to get profile: %v", err)
	}
	if got.Name != "default" || got.Samples != 30 {
		t.Errorf("profile = %+v", got)
	}
	if math.Abs(got.NeutralYaw-0.12) > 1e-12 || math.Abs(got.NeutralPitch+0.04) > 1e-12 {
		t.Errorf("neutral = %v/%v, want 0.12/-0.04", got.NeutralYaw, got.NeutralPitch)
	}
	if string(got.Thresholds) != `{"yaw_left":-0.5}` {
		t.Errorf("Thresholds = %s", got.Thresholds)
	}
	if !got.CalibratedAt.Equal(calibratedAt) {
		t.Errorf("CalibratedAt = %v, want %v", got.CalibratedAt, calibratedAt)
	}
	if !got.ExpiresAt.Equal(calibratedAt.Add(24 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", got.ExpiresAt)
	}
}

func TestProfileRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Profiles().GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID error = %v, want ErrNotFound", err)
	}
}

func TestProfileRepository_Latest(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	older := &Profile{Name: "default", NeutralYaw: 0.1, Samples: 30, CalibratedAt: calibratedAt}
	newer := &Profile{
		Name:         "default",
		NeutralYaw:   0.2,
		Samples:      30,
		CalibratedAt: calibratedAt.Add(time.Hour),
		ExpiresAt:    calibratedAt.Add(2 * time.Hour),
	}
	other := &Profile{Name: "guest", NeutralYaw: 0.3, Samples: 30, CalibratedAt: calibratedAt.Add(3 * time.Hour)}
	for _, p := range []*Profile{older, newer, other} {
		if err := repo.Create(p); err != nil {
			t.Fatalf("failed to create profile: %v", err)
		}
	}

	tests := []struct {
		name   string
		now    time.Time
		wantID string
	}{
		{"newest unexpired", calibratedAt.Add(90 * time.Minute), newer.ID},
		{"falls back past expired", calibratedAt.Add(2 * time.Hour), older.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Latest("default", tt.now)
			if err != nil {
				t.Fatalf("Latest error = %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("Latest = %s (yaw %v), want %s", got.ID, got.NeutralYaw, tt.wantID)
			}
		})
	}

	if _, err := repo.Latest("nobody", calibratedAt); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(nobody) error = %v, want ErrNotFound", err)
	}
}

func TestProfileRepository_DeleteExpired(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	keep := &Profile{Name: "default", Samples: 30, CalibratedAt: calibratedAt}
	drop := &Profile{Name: "default", Samples: 30, CalibratedAt: calibratedAt, ExpiresAt: calibratedAt.Add(time.Minute)}
	for _, p := range []*Profile{keep, drop} {
		if err := repo.Create(p); err != nil {
			t.Fatalf("failed to create profile: %v", err)
		}
	}

	removed, err := repo.DeleteExpired(calibratedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	profiles, err := repo.List()
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != keep.ID {
		t.Errorf("remaining profiles = %v", profiles)
	}
}

func TestProfileRepository_Delete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Profiles()

	p := &Profile{Name: "default", Samples: 30, CalibratedAt: calibratedAt}
	if err := repo.Create(p); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}
	if err := repo.Delete(p.ID); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if err := repo.Delete(p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestProfile_Expired(t *testing.T) {
	p := Profile{}
	if p.Expired(calibratedAt) {
		t.Error("profile without expiry should never expire")
	}
	p.ExpiresAt = calibratedAt
	if !p.Expired(calibratedAt) {
		t.Error("profile should be expired at its expiry time")
	}
	if p.Expired(calibratedAt.Add(-time.Second)) {
		t.Error("profile should be valid before its expiry time")
	}
}
