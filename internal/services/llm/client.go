package llm

import (
	"context"
	"encoding/json"

	"sidebridge/internal/bridge"
)

// Client is the surface-side facade over LLM_ messages.
type Client struct {
	caller bridge.Caller
}

func NewClient(caller bridge.Caller) *Client {
	return &Client{caller: caller}
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var out ChatResponse
	err := c.call(ctx, TypeChat, req, &out)
	return out, err
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var out CompletionResponse
	err := c.call(ctx, TypeComplete, req, &out)
	return out, err
}

func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out []string
	err := c.call(ctx, TypeGetModels, nil, &out)
	return out, err
}

// Sentiment returns the remote analysis as raw JSON; its shape is model specific.
func (c *Client) Sentiment(ctx context.Context, text string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, TypeAnalyzeSentiment, TextRequest{Text: text}, &out)
	return out, err
}

func (c *Client) Summarize(ctx context.Context, text string, maxLength int) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.call(ctx, TypeSummarize, TextRequest{Text: text, MaxLength: maxLength}, &out)
	return out, err
}

func (c *Client) Keywords(ctx context.Context, text string) ([]string, error) {
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := c.call(ctx, TypeExtractKeywords, TextRequest{Text: text}, &out)
	return out.Keywords, err
}

func (c *Client) call(ctx context.Context, msgType string, payload, out any) error {
	resp := c.caller.Call(ctx, msgType, payload)
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeData(out)
}
