package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantFPS int
	}{
		{"defaults", Config{}, DefaultFPS},
		{"custom rate", Config{DeviceID: 1, FPS: 15}, 15},
		{"negative rate", Config{DeviceID: 2, FPS: -1}, DefaultFPS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.config)

			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be running initially")
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	cam.SetFPS(10)
	if got := cam.FPS(); got != 10 {
		t.Errorf("FPS() = %d, want 10", got)
	}

	cam.SetFPS(0)
	cam.SetFPS(-5)
	if got := cam.FPS(); got != 10 {
		t.Errorf("FPS() = %d, want previous value 10", got)
	}
}

func TestCamera_NotOpened(t *testing.T) {
	cam := NewCamera(DefaultConfig())

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on not opened camera = %v, want nil", err)
	}
}

func TestMirror(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer frame.Close()
	frame.SetUCharAt(0, 0, 200)

	mirrored := Mirror(&frame)
	defer mirrored.Close()

	if got := mirrored.GetUCharAt(0, 1); got != 200 {
		t.Errorf("mirrored(0,1) = %d, want 200", got)
	}
	if got := mirrored.GetUCharAt(0, 0); got != 0 {
		t.Errorf("mirrored(0,0) = %d, want 0", got)
	}
}

func TestCamera_OpenClose_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(Config{Mirror: true})
	if err := cam.Open(); err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}

	if !cam.IsOpen() {
		t.Error("IsOpen() should return true after Open()")
	}

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() failed: %v", err)
	} else {
		if mat.Empty() {
			t.Error("ReadFrame() returned empty mat")
		}
		mat.Close()
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should return false after Close()")
	}
}
