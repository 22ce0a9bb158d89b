// Package apiclient is the JSON HTTP client the remote-backed handlers share.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sidebridge/internal/bridge"
)

// Client calls a REST API rooted at baseURL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, http.StatusText(e.Code))
}

// Do sends body (nil for none) as JSON and returns the raw JSON reply with its status.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, int, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("remote_api_call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &StatusError{Code: resp.StatusCode}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, resp.StatusCode, nil
	}
	if !json.Valid(raw) {
		return nil, resp.StatusCode, fmt.Errorf("invalid JSON from %s %s", method, path)
	}
	return json.RawMessage(raw), resp.StatusCode, nil
}

// Respond turns the result of Do into a Response. Errors become unsuccessful
// responses and are logged under event.
func (c *Client) Respond(event string, data json.RawMessage, status int, err error) bridge.Response {
	if err != nil {
		c.logger.Error(event, "status", status, "error", err)
		return bridge.Fail(err.Error())
	}
	resp := bridge.Response{Success: true, Status: status}
	if len(data) > 0 {
		resp.Data = data
	}
	return resp
}

// Decode unmarshals a handler payload, leaving v untouched when it is absent.
func Decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
