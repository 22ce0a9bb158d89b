package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sidebridge/internal/microservices/http-api/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// surfaces are authenticated by sender token, not by origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request into a long-lived port. ctx bounds every
// dispatch made on the port.
func WSHandler(ctx context.Context, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sender, ok := middleware.SenderFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: sender not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader already replied
			hub.logger.Warn("port_upgrade_failed", "error", err)
			return
		}

		client := NewClient(uuid.NewString(), sender, conn, hub)
		if !hub.register(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump(ctx)
	}
}
