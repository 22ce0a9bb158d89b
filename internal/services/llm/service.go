// Package llm forwards LLM_ messages to the remote language-model API.
package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"sidebridge/internal/bridge"
	"sidebridge/internal/services/apiclient"
)

const (
	Prefix = "LLM_"

	TypeChat             = "LLM_CHAT"
	TypeComplete         = "LLM_COMPLETE"
	TypeGetModels        = "LLM_GET_MODELS"
	TypeAnalyzeSentiment = "LLM_ANALYZE_SENTIMENT"
	TypeSummarize        = "LLM_SUMMARIZE"
	TypeExtractKeywords  = "LLM_EXTRACT_KEYWORDS"
)

type ChatMessage struct {
	Role      string `json:"role"` // user, assistant, system
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type ChatResponse struct {
	Message ChatMessage `json:"message"`
	Usage   *Usage      `json:"usage,omitempty"`
}

type CompletionRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
}

type CompletionResponse struct {
	Completion string `json:"completion"`
	Usage      *Usage `json:"usage,omitempty"`
}

// TextRequest is the payload of the sentiment, summarize and keywords operations.
type TextRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"maxLength,omitempty"`
}

type Service struct {
	api    *apiclient.Client
	logger *slog.Logger
}

func NewService(api *apiclient.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger}
}

// HandleMessage implements bridge.Handler.
func (s *Service) HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (bridge.Response, error) {
	switch msgType {
	case TypeChat:
		var req ChatRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		return s.post(ctx, "/llm/chat", req, "chat_request_failed"), nil

	case TypeComplete:
		var req CompletionRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		return s.post(ctx, "/llm/complete", req, "completion_request_failed"), nil

	case TypeGetModels:
		raw, status, err := s.api.Do(ctx, http.MethodGet, "/llm/models", nil)
		return s.api.Respond("models_fetch_failed", raw, status, err), nil

	case TypeAnalyzeSentiment:
		var req TextRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		return s.post(ctx, "/llm/sentiment", TextRequest{Text: req.Text}, "sentiment_request_failed"), nil

	case TypeSummarize:
		var req TextRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		return s.post(ctx, "/llm/summarize", req, "summarize_request_failed"), nil

	case TypeExtractKeywords:
		var req TextRequest
		if err := apiclient.Decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		return s.post(ctx, "/llm/keywords", TextRequest{Text: req.Text}, "keywords_request_failed"), nil

	default:
		return bridge.Failf("Unknown LLM operation: %s", msgType), nil
	}
}

func (s *Service) post(ctx context.Context, path string, body any, failEvent string) bridge.Response {
	s.logger.Info("llm_request", "path", path)
	raw, status, err := s.api.Do(ctx, http.MethodPost, path, body)
	return s.api.Respond(failEvent, raw, status, err)
}
