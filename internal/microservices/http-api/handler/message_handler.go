package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"sidebridge/internal/bridge"
	"sidebridge/internal/microservices/http-api/dto"
	"sidebridge/internal/microservices/http-api/middleware"
)

// Dispatcher is satisfied by *bridge.Dispatcher.
type Dispatcher interface {
	Handle(ctx context.Context, sender bridge.Sender, env bridge.Envelope) bridge.Response
}

// PrefixLister is satisfied by *bridge.Registry.
type PrefixLister interface {
	ListPrefixes() []string
}

type MessageHandler struct {
	dispatcher Dispatcher
	prefixes   PrefixLister
}

func NewMessageHandler(dispatcher Dispatcher, prefixes PrefixLister) *MessageHandler {
	return &MessageHandler{dispatcher: dispatcher, prefixes: prefixes}
}

func (h *MessageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.SendMessage)
}

// SendMessage answers every well-formed envelope with 200 and a bridge
// response. Handler failures travel inside the body, not the status line.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bridge.Failf("Invalid message: %v", err).WithStatus(http.StatusBadRequest))
		return
	}

	sender, _ := middleware.SenderFrom(c)
	resp := h.dispatcher.Handle(c.Request.Context(), sender, bridge.Envelope{Type: req.Type, Data: req.Data})
	c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) CheckConn(c *gin.Context) {
	c.JSON(http.StatusOK, dto.CheckConnResponse{
		Message:  "API is alive",
		Prefixes: h.prefixes.ListPrefixes(),
	})
}
