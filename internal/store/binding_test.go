package store

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestBindingRepository_CRUD(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	b := &Binding{
		Gesture:    "JUMP",
		PluginName: "keyboard",
		ActionName: "key",
		Config:     json.RawMessage(`{"key":"up"}`),
		Enabled:    true,
	}
	if err := repo.Create(b); err != nil {
		t.Fatalf("failed to create binding: %v", err)
	}
	if b.ID == "" || b.CreatedAt.IsZero() {
		t.Fatalf("binding after create = %+v", b)
	}

	got, err := repo.GetByID(b.ID)
	if err != nil {
		t.Fatalf("failed to get binding: %v", err)
	}
	if got.Gesture != "JUMP" || got.PluginName != "keyboard" || !got.Enabled {
		t.Errorf("binding = %+v", got)
	}
	if string(got.Config) != `{"key":"up"}` {
		t.Errorf("Config = %s", got.Config)
	}

	got.Enabled = false
	got.Config = nil
	if err := repo.Update(got); err != nil {
		t.Fatalf("failed to update binding: %v", err)
	}
	updated, err := repo.GetByID(b.ID)
	if err != nil {
		t.Fatalf("failed to get updated binding: %v", err)
	}
	if updated.Enabled || string(updated.Config) != "{}" {
		t.Errorf("updated binding = %+v", updated)
	}

	if err := repo.Delete(b.ID); err != nil {
		t.Fatalf("failed to delete binding: %v", err)
	}
	if _, err := repo.GetByID(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete error = %v, want ErrNotFound", err)
	}
}

func TestBindingRepository_RejectsUnknownGesture(t *testing.T) {
	s := newTestStore(t)
	err := s.Bindings().Create(&Binding{Gesture: "WAVE", PluginName: "keyboard", ActionName: "key"})
	if err == nil {
		t.Error("Create should reject unknown gestures")
	}
}

func TestBindingRepository_ListByGesture(t *testing.T) {
	s := newTestStore(t)
	repo := s.Bindings()

	bindings := []*Binding{
		{ID: "a", Gesture: "MOVE_LEFT", PluginName: "keyboard", ActionName: "key", Enabled: true},
		{ID: "b", Gesture: "MOVE_LEFT", PluginName: "logger", ActionName: "log", Enabled: false},
		{ID: "c", Gesture: "MOVE_RIGHT", PluginName: "keyboard", ActionName: "key", Enabled: true},
	}
	for _, b := range bindings {
		if err := repo.Create(b); err != nil {
			t.Fatalf("failed to create binding: %v", err)
		}
	}

	left, err := repo.ListByGesture("MOVE_LEFT")
	if err != nil {
		t.Fatalf("ListByGesture error = %v", err)
	}
	if len(left) != 1 || left[0].ID != "a" {
		t.Errorf("ListByGesture(MOVE_LEFT) = %v, want only a", left)
	}

	all, err := repo.List()
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d bindings, want 3", len(all))
	}
}

func TestBindingRepository_UpdateMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.Bindings().Update(&Binding{ID: "missing", Gesture: "JUMP", PluginName: "p", ActionName: "a"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update error = %v, want ErrNotFound", err)
	}
}
