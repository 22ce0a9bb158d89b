package tcp

import (
	"encoding/json"

	"sidebridge/internal/bridge"
)

// Frame is one newline-terminated request from a surface.
type Frame struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Token string          `json:"token,omitempty"`
}

func (f Frame) Envelope() bridge.Envelope {
	return bridge.Envelope{Type: f.Type, Data: f.Data}
}

// Reply answers the frame with the same ID.
type Reply struct {
	ID       string          `json:"id"`
	Response bridge.Response `json:"response"`
}

// Event is an unsolicited push to every connection. It carries no ID.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
