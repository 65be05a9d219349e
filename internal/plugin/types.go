// Package plugin discovers and runs action plugins: small executables that
// receive one JSON request on stdin and answer with one JSON response.
package plugin

import (
	"encoding/json"
	"time"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// HasAction reports whether the manifest declares action. A manifest without
// an action list accepts any action.
func (m Manifest) HasAction(action string) bool {
	if len(m.Actions) == 0 {
		return true
	}
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Request is sent to a plugin when a bound gesture is accepted.
type Request struct {
	Action   string          `json:"action"`
	Gesture  string          `json:"gesture"`
	Previous string          `json:"previous,omitempty"`
	At       time.Time       `json:"at"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
