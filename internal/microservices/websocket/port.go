package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sidebridge/internal/bridge"
)

// EventFunc receives background events pushed on a port.
type EventFunc func(event string, data json.RawMessage)

// Port is the surface end of a long-lived connection. It implements
// bridge.Channel by correlating responses with requests by ID.
type Port struct {
	conn    *websocket.Conn
	pending *bridge.PendingRequests
	onEvent EventFunc
	writeMu sync.Mutex
	done    chan struct{}
}

// DialPort connects to a background /ws endpoint. onEvent may be nil.
func DialPort(ctx context.Context, url, token string, onEvent EventFunc) (*Port, error) {
	header := http.Header{}
	if token != "" {
		header.Add("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrNoReceiver, err)
	}

	p := &Port{
		conn:    conn,
		pending: bridge.NewPendingRequests(),
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Port) readLoop() {
	defer close(p.done)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.pending.FailAll(bridge.ErrChannelClosed)
			return
		}

		var in struct {
			Kind     MessageKind     `json:"kind"`
			ID       string          `json:"id"`
			Response json.RawMessage `json:"response"`
			Event    string          `json:"event"`
			Data     json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}

		switch in.Kind {
		case KindResponse:
			resp, err := bridge.DecodeResponse(in.Response)
			if err != nil {
				resp = bridge.Fail(err.Error())
			}
			p.pending.Resolve(in.ID, resp)
		case KindEvent:
			if p.onEvent != nil {
				p.onEvent(in.Event, in.Data)
			}
		}
	}
}

// Send writes a request and waits for its response. A port that closes
// first yields (nil, nil).
func (p *Port) Send(ctx context.Context, env bridge.Envelope) (*bridge.Response, error) {
	id := uuid.NewString()
	slot, err := p.pending.Register(id)
	if err != nil {
		return nil, err
	}

	payload, err := (&Message{Kind: KindRequest, ID: id, Type: env.Type, Data: env.Data}).ToJSON()
	if err != nil {
		p.pending.Drop(id)
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	p.writeMu.Lock()
	err = p.conn.WriteMessage(websocket.TextMessage, payload)
	p.writeMu.Unlock()
	if err != nil {
		p.pending.Drop(id)
		return nil, err
	}

	select {
	case resp, ok := <-slot:
		if !ok {
			return nil, nil
		}
		return &resp, nil
	case <-ctx.Done():
		p.pending.Drop(id)
		return nil, ctx.Err()
	}
}

// Pending reports requests still waiting for a response.
func (p *Port) Pending() int {
	return p.pending.Len()
}

// Done is closed once the port stops reading.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

func (p *Port) Close() error {
	p.writeMu.Lock()
	p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	p.writeMu.Unlock()
	err := p.conn.Close()
	<-p.done
	return err
}
