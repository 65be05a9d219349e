package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("text handler filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "warn", false)

		l.Info("hidden")
		l.Warn("shown", "gesture", "JUMP")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info message should be filtered at warn level: %q", out)
		}
		if !strings.Contains(out, "gesture=JUMP") {
			t.Errorf("expected key/value attribute in output, got %q", out)
		}
	})

	t.Run("json handler emits objects", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, "debug", true)

		l.Debug("frame", "yaw", 0.25)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
		}
		if entry["msg"] != "frame" {
			t.Errorf("msg = %v, want frame", entry["msg"])
		}
		if entry["yaw"] != 0.25 {
			t.Errorf("yaw = %v, want 0.25", entry["yaw"])
		}
	})
}
