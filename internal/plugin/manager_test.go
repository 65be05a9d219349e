package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeManifest creates dir/<name>/plugin.json under root.
func writeManifest(t *testing.T, root, dir string, manifest any) string {
	t.Helper()

	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	var data []byte
	switch m := manifest.(type) {
	case string:
		data = []byte(m)
	default:
		var err error
		if data, err = json.Marshal(m); err != nil {
			t.Fatalf("failed to marshal manifest: %v", err)
		}
	}

	if err := os.WriteFile(filepath.Join(pluginDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return pluginDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writeManifest(t, tmpDir, "keys", Manifest{
		Name:        "keyboard",
		Version:     "1.0.0",
		Description: "Arrow keys",
		Executable:  "keyboard",
		Actions:     []string{"key"},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugin, err := manager.Get("keyboard")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if plugin.Path != pluginDir {
		t.Errorf("Path = %q, want %q", plugin.Path, pluginDir)
	}
	if plugin.Executable != filepath.Join(pluginDir, "keyboard") {
		t.Errorf("Executable = %q", plugin.Executable)
	}
	if plugin.Manifest.Version != "1.0.0" || plugin.Manifest.Description != "Arrow keys" {
		t.Errorf("Manifest = %+v", plugin.Manifest)
	}
}

func TestManager_Discover_Skips(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "bad-json", "not valid json")
	writeManifest(t, tmpDir, "no-name", Manifest{Executable: "x"})
	writeManifest(t, tmpDir, "no-exec", Manifest{Name: "no-exec"})
	writeManifest(t, tmpDir, "good", Manifest{Name: "good", Executable: "good"})
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "good" {
		t.Errorf("List() = %v, want only good", plugins)
	}
}

func TestManager_List_Sorted(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		writeManifest(t, tmpDir, name, Manifest{Name: name, Executable: name})
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	plugins := manager.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(plugins) != len(want) {
		t.Fatalf("List() returned %d plugins, want %d", len(plugins), len(want))
	}
	for i, p := range plugins {
		if p.Manifest.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, p.Manifest.Name, want[i])
		}
	}
}

func TestManager_Rediscover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writeManifest(t, tmpDir, "gone", Manifest{Name: "gone", Executable: "gone"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if err := os.RemoveAll(pluginDir); err != nil {
		t.Fatal(err)
	}
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if _, err := manager.Get("gone"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("Get() after removal error = %v, want ErrPluginNotFound", err)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	manager := NewManager("/path/that/does/not/exist")

	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed on non-existent dir: %v", err)
	}
	if plugins := manager.List(); len(plugins) != 0 {
		t.Fatalf("expected 0 plugins, got %d", len(plugins))
	}
	if manager.PluginDir() != "/path/that/does/not/exist" {
		t.Errorf("PluginDir() = %q", manager.PluginDir())
	}
}

func TestManifest_HasAction(t *testing.T) {
	tests := []struct {
		name    string
		actions []string
		action  string
		want    bool
	}{
		{"declared", []string{"key", "log"}, "log", true},
		{"undeclared", []string{"key"}, "log", false},
		{"no list accepts all", nil, "anything", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Manifest{Actions: tt.actions}
			if got := m.HasAction(tt.action); got != tt.want {
				t.Errorf("HasAction(%q) = %v, want %v", tt.action, got, tt.want)
			}
		})
	}
}
