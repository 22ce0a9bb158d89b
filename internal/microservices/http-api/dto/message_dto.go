package dto

import "encoding/json"

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data,omitempty"`
}

type CheckConnResponse struct {
	Message  string   `json:"message"`
	Prefixes []string `json:"prefixes"`
}
