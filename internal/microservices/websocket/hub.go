package websocket

// Central hub managing all port connections. Each connection runs in its own
// goroutines but membership changes and broadcasts go through the hub loop.

import (
	"context"
	"log/slog"
	"sync/atomic"

	"sidebridge/internal/bridge"
)

// ConnectionObserver is notified as ports open and close.
type ConnectionObserver interface {
	ConnectionOpened(transport string)
	ConnectionClosed(transport string)
}

type Hub struct {
	clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int64

	receiver bridge.Receiver
	observer ConnectionObserver
	logger   *slog.Logger
}

func NewHub(receiver bridge.Receiver, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		receiver:   receiver,
		logger:     logger,
	}
}

// SetObserver must be called before Run.
func (h *Hub) SetObserver(o ConnectionObserver) {
	h.observer = o
}

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			h.count.Add(1)
			if h.observer != nil {
				h.observer.ConnectionOpened("ws")
			}
			h.logger.Info("port_connected",
				"client_id", client.ID,
				"from", client.Sender.From(),
			)

		case client := <-h.Unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.enqueue(msg) {
					h.logger.Warn("port_send_buffer_full", "client_id", client.ID)
					h.remove(client)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			h.logger.Info("hub_stopped")
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	h.count.Add(-1)
	client.closeSend()
	if h.observer != nil {
		h.observer.ConnectionClosed("ws")
	}
	h.logger.Info("port_disconnected", "client_id", client.ID)
}

// Broadcast pushes an event to every port. It never blocks: the event is
// dropped when the hub is stopped or backed up.
func (h *Hub) Broadcast(event string, data any) {
	msg, err := NewEventMessage(event, data)
	if err != nil {
		h.logger.Error("failed_to_marshal_event", "event", event, "error", err)
		return
	}
	payload, err := msg.ToJSON()
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
		h.logger.Warn("event_dropped", "event", event)
	}
}

func (h *Hub) register(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
