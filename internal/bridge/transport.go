package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultRequestTimeout applies when the caller's context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

const errNoResponse = "No response received"

// Channel is the raw one-shot primitive: one envelope out, at most one reply back.
// A nil response with a nil error means the receiver never replied.
type Channel interface {
	Send(ctx context.Context, env Envelope) (*Response, error)
}

// Caller is the uniform request contract shared by surfaces and internal callers.
type Caller interface {
	Call(ctx context.Context, msgType string, data any) Response
}

// Transport adapts a Channel into a Caller that always returns a Response.
type Transport struct {
	channel Channel
	timeout time.Duration
	logger  *slog.Logger
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithRequestTimeout sets the deadline applied to calls without one.
func WithRequestTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport wraps channel.
func NewTransport(channel Channel, opts ...TransportOption) *Transport {
	t := &Transport{
		channel: channel,
		timeout: DefaultRequestTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendResult struct {
	resp *Response
	err  error
}

// Call sends {msgType, data} and resolves exactly once. Transport failures,
// a missing reply and an expired deadline all come back as unsuccessful responses.
// A reply arriving after the deadline is dropped.
func (t *Transport) Call(ctx context.Context, msgType string, data any) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.channel == nil {
		return Fail(ErrNoReceiver.Error())
	}
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return Fail(err.Error())
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	result := make(chan sendResult, 1)
	go func() {
		resp, err := t.channel.Send(ctx, env)
		result <- sendResult{resp: resp, err: err}
	}()

	select {
	case r := <-result:
		return t.settle(msgType, r)
	case <-ctx.Done():
		t.logger.Warn("request_abandoned",
			"type", msgType,
			"error", ctx.Err(),
		)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failf("Request timed out: %s", msgType)
		}
		return Fail(ctx.Err().Error())
	}
}

func (t *Transport) settle(msgType string, r sendResult) Response {
	if r.err != nil {
		t.logger.Warn("transport_failure",
			"type", msgType,
			"error", r.err,
		)
		return Fail(r.err.Error())
	}
	if r.resp == nil {
		return Fail(errNoResponse)
	}
	return normalize(*r.resp)
}
