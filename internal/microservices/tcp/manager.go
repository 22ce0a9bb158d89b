package tcp

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sidebridge/internal/bridge"
)

// ConnectionObserver is notified as connections come and go.
type ConnectionObserver interface {
	ConnectionOpened(transport string)
	ConnectionClosed(transport string)
}

type ConnectionManager struct {
	clients    map[string]*ClientConnection
	mu         sync.RWMutex
	logger     *slog.Logger
	receiver   bridge.Receiver
	validator  TokenValidator
	observer   ConnectionObserver
	frameRate    rate.Limit
	frameBurst   int
	writeTimeout time.Duration
}

func NewConnectionManager(receiver bridge.Receiver, logger *slog.Logger) *ConnectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionManager{
		clients:    make(map[string]*ClientConnection),
		logger:     logger,
		receiver:   receiver,
		frameRate:    rate.Limit(10),
		frameBurst:   20,
		writeTimeout: DefaultWriteTimeout,
	}
}

func (m *ConnectionManager) AddConnection(client *ClientConnection) {
	m.mu.Lock()
	m.clients[client.ID] = client
	m.mu.Unlock()
	if m.observer != nil {
		m.observer.ConnectionOpened("tcp")
	}
	m.logger.Info("client_added",
		"client_id", client.ID,
	)
}

func (m *ConnectionManager) RemoveConnection(client *ClientConnection) {
	m.mu.Lock()
	_, ok := m.clients[client.ID]
	delete(m.clients, client.ID)
	m.mu.Unlock()
	if ok && m.observer != nil {
		m.observer.ConnectionClosed("tcp")
	}
	m.logger.Info("client_removed",
		"client_id", client.ID,
	)
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *ConnectionManager) snapshot() []*ClientConnection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clients := make([]*ClientConnection, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	return clients
}

func (m *ConnectionManager) CloseAllConnections() {
	for _, client := range m.snapshot() {
		client.Close()
		m.logger.Info("client_connection_closed",
			"client_id", client.ID,
		)
	}
}

// BroadcastEvent queues an event frame on every connection. It never blocks;
// a connection whose queue is full misses the event.
func (m *ConnectionManager) BroadcastEvent(name string, data any) {
	msg, err := eventFrame(name, data)
	if err != nil {
		m.logger.Error("failed_to_marshal_broadcast_event",
			"event", name,
			"error", err.Error(),
		)
		return
	}
	m.Broadcast(msg)
}

func (m *ConnectionManager) Broadcast(msg []byte) {
	for _, c := range m.snapshot() {
		if !c.Enqueue(msg) {
			m.logger.Warn("event_dropped",
				"client_id", c.ID,
			)
		}
	}
}

// SendAll writes msg to every connection and waits for the writes, each
// bounded by the write timeout.
func (m *ConnectionManager) SendAll(msg []byte) {
	var wg sync.WaitGroup
	for _, c := range m.snapshot() {
		wg.Add(1)
		go func(c *ClientConnection) {
			defer wg.Done()
			if err := c.Send(msg); err != nil {
				m.logger.Warn("failed_to_send_broadcast",
					"client_id", c.ID,
					"error", err.Error(),
				)
			}
		}(c)
	}
	wg.Wait()
}

func eventFrame(name string, data any) ([]byte, error) {
	return json.Marshal(Event{Event: name, Data: data})
}
