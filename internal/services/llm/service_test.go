package llm

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sidebridge/internal/bridge"
	"sidebridge/internal/services/apiclient"
)

func fakeLLMAPI() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/llm")
	g.POST("/chat", func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Messages) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "messages required"})
			return
		}
		last := req.Messages[len(req.Messages)-1]
		c.JSON(http.StatusOK, ChatResponse{
			Message: ChatMessage{Role: "assistant", Content: "echo: " + last.Content},
			Usage:   &Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
		})
	})
	g.POST("/complete", func(c *gin.Context) {
		var req CompletionRequest
		_ = c.ShouldBindJSON(&req)
		c.JSON(http.StatusOK, CompletionResponse{Completion: req.Prompt + "..."})
	})
	g.GET("/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, []string{"small", "large"})
	})
	g.POST("/sentiment", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sentiment": "positive", "score": 0.9})
	})
	g.POST("/summarize", func(c *gin.Context) {
		var req TextRequest
		_ = c.ShouldBindJSON(&req)
		c.JSON(http.StatusOK, gin.H{"summary": req.Text[:req.MaxLength]})
	})
	g.POST("/keywords", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"keywords": []string{"go", "bridge"}})
	})
	return r
}

func newLLMClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(fakeLLMAPI())
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := bridge.NewRegistry()
	registry.MustRegister(Prefix, NewService(apiclient.New(srv.URL, logger), logger))
	dispatcher := bridge.NewDispatcher(registry, bridge.WithLogger(logger))
	return NewClient(bridge.NewTransport(bridge.NewLocalChannel(dispatcher, bridge.Sender{}), bridge.WithTransportLogger(logger)))
}

func TestLLM_Operations(t *testing.T) {
	client := newLLMClient(t)
	ctx := context.Background()

	chat, err := client.Chat(ctx, ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", chat.Message.Content)
	require.NotNil(t, chat.Usage)
	assert.Equal(t, 5, chat.Usage.TotalTokens)

	completion, err := client.Complete(ctx, CompletionRequest{Prompt: "Once"})
	require.NoError(t, err)
	assert.Equal(t, "Once...", completion.Completion)

	models, err := client.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"small", "large"}, models)

	sentiment, err := client.Sentiment(ctx, "great")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sentiment":"positive","score":0.9}`, string(sentiment))

	summary, err := client.Summarize(ctx, "abcdefgh", 3)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"abc"}`, string(summary))

	keywords, err := client.Keywords(ctx, "go bridge")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "bridge"}, keywords)
}

func TestLLM_HTTPError(t *testing.T) {
	client := newLLMClient(t)

	_, err := client.Chat(context.Background(), ChatRequest{})
	assert.EqualError(t, err, "HTTP 400: Bad Request")
}

func TestLLM_UnknownOperation(t *testing.T) {
	svc := NewService(apiclient.New("http://127.0.0.1:1", nil), nil)

	resp, err := svc.HandleMessage(context.Background(), "LLM_TRANSLATE", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown LLM operation: LLM_TRANSLATE", resp.Error)
}

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(ctx context.Context, msgType string, data any) bridge.Response {
	args := m.Called(msgType, data)
	return args.Get(0).(bridge.Response)
}

func TestClient_SendsTypedPayload(t *testing.T) {
	caller := new(mockCaller)
	caller.On("Call", TypeSummarize, TextRequest{Text: "long text", MaxLength: 4}).
		Return(bridge.OK(json.RawMessage(`{"summary":"long"}`)))
	caller.On("Call", TypeGetModels, nil).
		Return(bridge.Fail("Request timed out: LLM_GET_MODELS"))

	client := NewClient(caller)

	summary, err := client.Summarize(context.Background(), "long text", 4)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"long"}`, string(summary))

	_, err = client.Models(context.Background())
	assert.EqualError(t, err, "Request timed out: LLM_GET_MODELS")

	caller.AssertExpectations(t)
}
