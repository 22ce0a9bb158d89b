package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sidebridge/internal/bridge"
)

// Channel is a bridge.Channel that POSTs each envelope to /api/messages.
type Channel struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewChannel(baseURL, token string) *Channel {
	return &Channel{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Channel) Send(ctx context.Context, env bridge.Envelope) (*bridge.Response, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", bridge.ErrNoReceiver, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	decoded, err := bridge.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	// middleware rejections are plain {"error": ...} bodies
	if !decoded.Success && decoded.Status == 0 && resp.StatusCode >= 400 {
		decoded.Status = resp.StatusCode
	}
	return &decoded, nil
}
