package websocket

import (
	"encoding/json"

	"sidebridge/internal/bridge"
)

// MessageKind tells the two ends of a port what a frame carries.
type MessageKind string

const (
	KindRequest  MessageKind = "request"  // surface -> background, expects a response
	KindResponse MessageKind = "response" // background -> surface, same ID as the request
	KindEvent    MessageKind = "event"    // background -> every surface, no ID
)

// Message is one websocket text frame.
type Message struct {
	Kind     MessageKind      `json:"kind"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Data     json.RawMessage  `json:"data,omitempty"`
	Response *bridge.Response `json:"response,omitempty"`
	Event    string           `json:"event,omitempty"`
}

func NewResponseMessage(id string, resp bridge.Response) *Message {
	return &Message{Kind: KindResponse, ID: id, Response: &resp}
}

func NewEventMessage(event string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindEvent, Event: event, Data: raw}, nil
}

func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
