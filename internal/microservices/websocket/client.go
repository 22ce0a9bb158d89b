package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sidebridge/internal/bridge"
)

const ( // ping pong(2-way heartbeat) to keep the port alive
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 1024 * 1024
	sendBuffer     = 256
)

// Client is the background end of one surface port.
type Client struct {
	ID          string
	Sender      bridge.Sender
	Conn        *websocket.Conn
	SendChannel chan []byte
	Hub         *Hub

	mu     sync.Mutex // guards closed and sends on SendChannel
	closed bool
}

func NewClient(id string, sender bridge.Sender, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:          id,
		Sender:      sender,
		Conn:        conn,
		SendChannel: make(chan []byte, sendBuffer),
		Hub:         hub,
	}
}

// ReadPump dispatches request frames until the peer goes away. Every request
// is answered on the same port with its ID.
func (c *Client) ReadPump(ctx context.Context) {
	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		c.Hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.logger.Warn("port_read_error", "client_id", c.ID, "error", err)
			}
			return
		}

		msg, err := MessageFromJSON(data)
		if err != nil {
			c.Hub.logger.Warn("invalid_json_received", "client_id", c.ID, "error", err)
			continue
		}
		if msg.Kind != KindRequest {
			continue
		}

		inflight.Add(1)
		go func(msg *Message) {
			defer inflight.Done()
			env := bridge.Envelope{Type: msg.Type, Data: msg.Data}
			c.Hub.receiver.Dispatch(ctx, c.Sender, env, func(resp bridge.Response) {
				c.SendMessage(NewResponseMessage(msg.ID, resp))
			})
		}(msg)
	}
}

// WritePump serialises all writes to the connection and keeps it alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.SendChannel:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues msg for the write pump.
func (c *Client) SendMessage(msg *Message) bool {
	payload, err := msg.ToJSON()
	if err != nil {
		payload, _ = NewResponseMessage(msg.ID, bridge.Failf("serialization failure: %v", err)).ToJSON()
	}
	if !c.enqueue(payload) {
		c.Hub.logger.Warn("port_reply_dropped", "client_id", c.ID, "id", msg.ID)
		return false
	}
	return true
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.SendChannel <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.SendChannel)
	}
}
