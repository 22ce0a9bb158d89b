package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelFunc func(ctx context.Context, env Envelope) (*Response, error)

func (f channelFunc) Send(ctx context.Context, env Envelope) (*Response, error) {
	return f(ctx, env)
}

// silentReceiver returns without replying.
type silentReceiver struct{}

func (silentReceiver) Dispatch(context.Context, Sender, Envelope, ReplyFunc) {}

func newLocalTransport(r *Registry, opts ...TransportOption) *Transport {
	d := NewDispatcher(r, WithLogger(quietLogger()))
	opts = append([]TransportOption{WithTransportLogger(quietLogger())}, opts...)
	return NewTransport(NewLocalChannel(d, Sender{Surface: "sidepanel"}), opts...)
}

func TestTransport_RoundTripsThroughDispatcher(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("ECHO_", HandlerFunc(func(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
		var in map[string]any
		if err := json.Unmarshal(data, &in); err != nil {
			return Response{}, err
		}
		return OK(in).WithMessage("echoed"), nil
	}))
	tr := newLocalTransport(r)

	resp := tr.Call(context.Background(), "ECHO_IT", map[string]any{"title": "Buy milk"})
	require.True(t, resp.Success)
	assert.Equal(t, "echoed", resp.Message)

	var out map[string]string
	require.NoError(t, resp.DecodeData(&out))
	assert.Equal(t, "Buy milk", out["title"])
}

func TestTransport_NoReceiver(t *testing.T) {
	tr := NewTransport(NewLocalChannel(nil, Sender{}), WithTransportLogger(quietLogger()))

	resp := tr.Call(context.Background(), "TASKS_GET_ALL", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Could not establish connection. Receiving end does not exist.", resp.Error)
}

func TestTransport_ClosedChannel(t *testing.T) {
	d := NewDispatcher(NewRegistry(), WithLogger(quietLogger()))
	ch := NewLocalChannel(d, Sender{})
	tr := NewTransport(ch, WithTransportLogger(quietLogger()))
	require.True(t, tr.Call(context.Background(), TypeHealthCheck, nil).Success)

	ch.Close()
	resp := tr.Call(context.Background(), TypeHealthCheck, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrNoReceiver.Error(), resp.Error)
}

func TestTransport_NoReply(t *testing.T) {
	tr := NewTransport(NewLocalChannel(silentReceiver{}, Sender{}), WithTransportLogger(quietLogger()))

	resp := tr.Call(context.Background(), "TASKS_GET_ALL", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "No response received", resp.Error)
}

func TestTransport_ChannelError(t *testing.T) {
	tr := NewTransport(channelFunc(func(ctx context.Context, env Envelope) (*Response, error) {
		return nil, errors.New("connection refused")
	}), WithTransportLogger(quietLogger()))

	resp := tr.Call(context.Background(), "TASKS_GET_ALL", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "connection refused", resp.Error)
}

func TestTransport_UnserializablePayload(t *testing.T) {
	tr := newLocalTransport(NewRegistry())

	resp := tr.Call(context.Background(), "TASKS_CREATE", map[string]any{"fn": func() {}})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "serialization failure")
}

func TestTransport_TimeoutDiscardsLateReply(t *testing.T) {
	release := make(chan struct{})
	sent := make(chan struct{})
	tr := NewTransport(channelFunc(func(ctx context.Context, env Envelope) (*Response, error) {
		close(sent)
		<-release
		resp := OK("late")
		return &resp, nil
	}), WithRequestTimeout(20*time.Millisecond), WithTransportLogger(quietLogger()))

	resp := tr.Call(context.Background(), "SLOW_OP", nil)
	<-sent
	close(release)

	assert.False(t, resp.Success)
	assert.Equal(t, "Request timed out: SLOW_OP", resp.Error)
}

func TestTransport_RespectsCallerDeadline(t *testing.T) {
	tr := NewTransport(channelFunc(func(ctx context.Context, env Envelope) (*Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), WithRequestTimeout(time.Hour), WithTransportLogger(quietLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp := tr.Call(ctx, "SLOW_OP", nil)
	assert.False(t, resp.Success)
}

func TestTransport_NormalizesFailureWithoutError(t *testing.T) {
	tr := NewTransport(channelFunc(func(ctx context.Context, env Envelope) (*Response, error) {
		return &Response{Success: false}, nil
	}), WithTransportLogger(quietLogger()))

	resp := tr.Call(context.Background(), "X", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unknown error", resp.Error)
}

func TestLocalChannel_ReceiverSeesClonedPayload(t *testing.T) {
	var got Envelope
	recv := receiverFunc(func(ctx context.Context, sender Sender, env Envelope, reply ReplyFunc) {
		got = env
		reply(OK(nil))
	})
	payload := json.RawMessage(`{"a":1}`)
	ch := NewLocalChannel(recv, Sender{})

	resp, err := ch.Send(context.Background(), Envelope{Type: "X", Data: payload})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	payload[2] = 'b'
	assert.JSONEq(t, `{"a":1}`, string(got.Data))
}

type receiverFunc func(ctx context.Context, sender Sender, env Envelope, reply ReplyFunc)

func (f receiverFunc) Dispatch(ctx context.Context, sender Sender, env Envelope, reply ReplyFunc) {
	f(ctx, sender, env, reply)
}

func TestPendingRequests(t *testing.T) {
	p := NewPendingRequests()

	slot, err := p.Register("1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())

	assert.True(t, p.Resolve("1", OK("done")))
	resp, ok := <-slot
	require.True(t, ok)
	assert.Equal(t, "done", resp.Data)

	assert.False(t, p.Resolve("1", OK("again")))

	late, err := p.Register("2")
	require.NoError(t, err)
	p.Drop("2")
	assert.False(t, p.Resolve("2", OK("late")))
	_, ok = <-late
	assert.False(t, ok)

	waiting, err := p.Register("3")
	require.NoError(t, err)
	p.FailAll(errors.New("socket closed"))
	_, ok = <-waiting
	assert.False(t, ok)
	assert.EqualError(t, p.Err(), "socket closed")

	_, err = p.Register("4")
	assert.EqualError(t, err, "socket closed")
}
