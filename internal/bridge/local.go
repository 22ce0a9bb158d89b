package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNoReceiver mirrors the browser runtime error for a channel without a listener.
var ErrNoReceiver = errors.New("Could not establish connection. Receiving end does not exist.")

// Receiver is the background side of a channel.
// It must call reply at most once and before returning.
type Receiver interface {
	Dispatch(ctx context.Context, sender Sender, env Envelope, reply ReplyFunc)
}

// LocalChannel connects a surface to an in-process receiver. Both directions
// are JSON round-tripped so nothing but serializable data crosses it.
type LocalChannel struct {
	mu       sync.RWMutex
	receiver Receiver
	sender   Sender
}

// NewLocalChannel creates a channel delivering to receiver on behalf of sender.
// A nil receiver yields a channel with no receiving end.
func NewLocalChannel(receiver Receiver, sender Sender) *LocalChannel {
	return &LocalChannel{receiver: receiver, sender: sender}
}

// Close detaches the receiver; later sends fail with ErrNoReceiver.
func (c *LocalChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = nil
}

// Send delivers env and waits for the reply.
func (c *LocalChannel) Send(ctx context.Context, env Envelope) (*Response, error) {
	c.mu.RLock()
	receiver := c.receiver
	c.mu.RUnlock()
	if receiver == nil {
		return nil, ErrNoReceiver
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}
	var cloned Envelope
	if err := json.Unmarshal(raw, &cloned); err != nil {
		return nil, fmt.Errorf("serialization failure: %w", err)
	}

	replies := make(chan Response, 1)
	returned := make(chan struct{})
	reply := func(resp Response) {
		encoded, err := json.Marshal(resp)
		if err != nil {
			resp = Fail(fmt.Sprintf("serialization failure: %v", err))
			encoded, _ = json.Marshal(resp)
		}
		decoded, err := DecodeResponse(encoded)
		if err != nil {
			decoded = Fail(err.Error())
		}
		select {
		case replies <- decoded:
		default:
		}
	}

	go func() {
		defer close(returned)
		receiver.Dispatch(ctx, c.sender, cloned, reply)
	}()

	select {
	case resp := <-replies:
		return &resp, nil
	case <-returned:
		select {
		case resp := <-replies:
			return &resp, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
