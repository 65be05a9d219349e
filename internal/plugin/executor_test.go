package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, script string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir := t.TempDir()
	scriptPath := filepath.Join(tmpDir, "plugin.sh")
	if err := os.WriteFile(scriptPath, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest:   Manifest{Name: "test-plugin", Executable: "plugin.sh"},
		Path:       tmpDir,
		Executable: scriptPath,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, `echo '{"success":true,"data":{"message":"hello"}}'
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: "key", Gesture: "JUMP"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, error %q", resp.Error)
	}

	var data struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Message != "hello" {
		t.Errorf("Data = %s (%v)", resp.Data, err)
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	// Echo the request back as the response data.
	plugin := scriptPlugin(t, `read line
printf '{"success":true,"data":%s}' "$line"
`)

	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	req := &Request{
		Action:   "key",
		Gesture:  "MOVE_LEFT",
		Previous: "NONE",
		At:       at,
		Config:   json.RawMessage(`{"layout":"arrows"}`),
		Params:   json.RawMessage(`{}`),
	}

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var echoed Request
	if err := json.Unmarshal(resp.Data, &echoed); err != nil {
		t.Fatalf("failed to decode echoed request: %v", err)
	}
	if echoed.Gesture != "MOVE_LEFT" || echoed.Previous != "NONE" || !echoed.At.Equal(at) {
		t.Errorf("echoed request = %+v", echoed)
	}
	if string(echoed.Config) != `{"layout":"arrows"}` {
		t.Errorf("echoed config = %s", echoed.Config)
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		wantErr string
		is      error
	}{
		{"timeout", "sleep 5\n", 100 * time.Millisecond, "timed out", ErrTimeout},
		{"invalid json", "echo 'not json'\n", 5 * time.Second, "failed to parse plugin response", nil},
		{"non-zero exit", "echo 'boom' >&2\nexit 1\n", 5 * time.Second, "stderr: boom", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, tt.script)
			_, err := NewExecutor(tt.timeout).Execute(context.Background(), plugin, &Request{Action: "key"})
			if err == nil {
				t.Fatal("Execute() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.is)
			}
		})
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := scriptPlugin(t, `echo '{"success":false,"error":"no such key"}'
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: "key"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if resp.Success || resp.Error != "no such key" {
		t.Errorf("response = %+v", resp)
	}
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	plugin := scriptPlugin(t, "sleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewExecutor(5*time.Second).Execute(ctx, plugin, &Request{Action: "key"}); err == nil {
		t.Fatal("Execute() with a cancelled context should fail")
	}
}

func TestNewExecutor(t *testing.T) {
	if got := NewExecutor(3 * time.Second).Timeout(); got != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", got)
	}
}
