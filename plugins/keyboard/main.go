// Package main provides a keyboard plugin that turns gestures into arrow key
// presses, so any browser or desktop runner game can be played by head.
// It uses AppleScript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	Gesture  string          `json:"gesture"`
	Previous string          `json:"previous"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeyParams overrides the default key for a gesture.
type KeyParams struct {
	Key    string `json:"key"`
	DryRun bool   `json:"dry_run"`
}

// defaultKeys maps gestures to arrow keys. NONE releases nothing and presses nothing.
var defaultKeys = map[string]string{
	"MOVE_LEFT":  "left",
	"MOVE_RIGHT": "right",
	"JUMP":       "up",
	"DUCK":       "down",
}

// macKeyCodes are the AppleScript key codes for arrow keys.
var macKeyCodes = map[string]int{
	"left":  123,
	"right": 124,
	"down":  125,
	"up":    126,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "key" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	key, dryRun, err := resolveKey(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if key != "" && !dryRun {
		if err := press(key); err != nil {
			writeErrorResponse(fmt.Sprintf("press %s failed: %v", key, err))
			return
		}
	}

	writeSuccessResponse(key)
}

// resolveKey picks the key for the request: an explicit param, else the
// default for the gesture.
func resolveKey(req Request) (string, bool, error) {
	var p KeyParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return "", false, fmt.Errorf("failed to parse params: %w", err)
		}
	}

	key := strings.ToLower(p.Key)
	if key == "" {
		key = defaultKeys[req.Gesture]
	}
	if key != "" {
		if _, ok := macKeyCodes[key]; !ok {
			return "", false, fmt.Errorf("unsupported key %q", key)
		}
	}
	return key, p.DryRun, nil
}

func press(key string) error {
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`tell application "System Events" to key code %d`, macKeyCodes[key])
		return run("osascript", "-e", script)
	case "linux":
		return run("xdotool", "key", strings.ToUpper(key[:1])+key[1:])
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

func writeSuccessResponse(key string) {
	data, _ := json.Marshal(map[string]string{"key": key})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
