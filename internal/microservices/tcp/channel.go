package tcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"sidebridge/internal/bridge"
)

// DialTimeout bounds connection setup.
const DialTimeout = 5 * time.Second

// Channel is a bridge.Channel that opens one connection per request.
type Channel struct {
	addr  string
	token string
}

func NewChannel(addr, token string) *Channel {
	return &Channel{addr: addr, token: token}
}

// Send writes one frame and reads until the matching reply. Event frames are
// skipped. A connection closed before the reply yields (nil, nil).
func (c *Channel) Send(ctx context.Context, env bridge.Envelope) (*bridge.Response, error) {
	dialer := net.Dialer{Timeout: DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridge.ErrNoReceiver, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frame := Frame{ID: uuid.NewString(), Type: env.Type, Data: env.Data, Token: c.token}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	if _, err := conn.Write(append(payload, '\n')); err != nil {
		return nil, c.wrap(ctx, err)
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				return nil, nil
			}
			return nil, c.wrap(ctx, err)
		}
		var reply struct {
			ID       string          `json:"id"`
			Response json.RawMessage `json:"response"`
		}
		if err := json.Unmarshal(line, &reply); err != nil || reply.ID != frame.ID {
			continue
		}
		resp, err := bridge.DecodeResponse(reply.Response)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	}
}

func (c *Channel) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
