package bridge

import (
	"encoding/json"
	"fmt"
)

// Envelope is the request shape that crosses a channel.
type Envelope struct {
	Type string          `json:"type"`           // routing key, e.g. TASKS_CREATE
	Data json.RawMessage `json:"data,omitempty"` // optional JSON payload
}

// NewEnvelope marshals data into an envelope of the given type.
// A nil data produces an envelope without payload.
func NewEnvelope(msgType string, data any) (Envelope, error) {
	env := Envelope{Type: msgType}
	if data == nil {
		return env, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		env.Data = raw
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("serialization failure: %w", err)
	}
	env.Data = raw
	return env, nil
}

// Response is the only shape ever returned for a request, success or failure.
// When Success is false Error carries the reason.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

// OK builds a successful response carrying data.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail builds an unsuccessful response with the given error text.
func Fail(errText string) Response {
	return Response{Success: false, Error: errText}
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) Response {
	return Fail(fmt.Sprintf(format, args...))
}

// WithMessage returns a copy of r with Message set.
func (r Response) WithMessage(message string) Response {
	r.Message = message
	return r
}

// WithStatus returns a copy of r with Status set.
func (r Response) WithStatus(status int) Response {
	r.Status = status
	return r
}

// DecodeData unmarshals the response payload into v.
// Payloads received over a channel are json.RawMessage; in-process values
// are re-encoded first. A missing payload leaves v untouched.
func (r Response) DecodeData(v any) error {
	var raw []byte
	switch data := r.Data.(type) {
	case nil:
		return nil
	case json.RawMessage:
		raw = data
	case []byte:
		raw = data
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode response data: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// HasData reports whether the response carries a non-null payload.
func (r Response) HasData() bool {
	switch data := r.Data.(type) {
	case nil:
		return false
	case json.RawMessage:
		return len(data) > 0 && string(data) != "null"
	default:
		return true
	}
}

// Err returns nil for a successful response and a *ResponseError otherwise.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = errUnknown
	}
	return &ResponseError{Message: msg, Status: r.Status}
}

// ResponseError is an unsuccessful Response seen as a Go error.
type ResponseError struct {
	Message string
	Status  int
}

func (e *ResponseError) Error() string { return e.Message }

// wireResponse is Response as seen by the receiving side of a channel.
type wireResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  int             `json:"status,omitempty"`
}

// DecodeResponse parses a JSON-encoded response, keeping data as raw JSON.
func DecodeResponse(raw []byte) (Response, error) {
	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	resp := Response{
		Success: wire.Success,
		Error:   wire.Error,
		Message: wire.Message,
		Status:  wire.Status,
	}
	if len(wire.Data) > 0 {
		resp.Data = wire.Data
	}
	return resp, nil
}

// TabInfo describes the browser tab a surface is attached to.
type TabInfo struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Active   bool   `json:"active"`
}

// Sender identifies the surface a request came from.
type Sender struct {
	ID      string   `json:"id"`
	Surface string   `json:"surface,omitempty"` // sidepanel, popup, options, content
	Origin  string   `json:"origin,omitempty"`
	Tab     *TabInfo `json:"tab,omitempty"`
}

// Key is the value used to bucket the sender for rate limiting.
func (s Sender) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Surface
}

// From renders the sender for logs.
func (s Sender) From() string {
	if s.Tab != nil && s.Tab.URL != "" {
		return s.Tab.URL
	}
	if s.Surface != "" {
		return s.Surface
	}
	return "extension"
}
