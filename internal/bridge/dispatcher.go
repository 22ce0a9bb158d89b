package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	errUnknownMessageType = "Unknown message type"
	errInternal           = "Internal error"
	errRateLimited        = "Rate limit exceeded"
	errUnknown            = "Unknown error"

	// DefaultHandlerTimeout bounds a single handler call.
	DefaultHandlerTimeout = 30 * time.Second
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	routeBuiltin   = "builtin"
	routeUnknown   = "unknown"
)

// ReplyFunc delivers the terminal response for one request.
type ReplyFunc func(Response)

// Recorder receives one observation per handled message.
type Recorder interface {
	ObserveMessage(route, outcome string, elapsed time.Duration)
}

// Dispatcher turns an incoming envelope into exactly one Response.
type Dispatcher struct {
	registry       *Registry
	builtins       map[string]builtinFunc
	tabs           TabLocator
	limiter        *senderLimiter
	recorder       Recorder
	logger         *slog.Logger
	handlerTimeout time.Duration
	now            func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTabLocator sets the source for GET_TAB_INFO.
func WithTabLocator(tabs TabLocator) Option {
	return func(d *Dispatcher) {
		if tabs != nil {
			d.tabs = tabs
		}
	}
}

// WithRateLimit limits each sender to rps messages per second with the given burst.
// Zero values disable limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Dispatcher) {
		d.limiter = newSenderLimiter(rps, burst)
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithHandlerTimeout bounds each handler call. Non-positive disables the bound.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.handlerTimeout = timeout
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a dispatcher routing through registry.
func NewDispatcher(registry *Registry, opts ...Option) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	d := &Dispatcher{
		registry:       registry,
		tabs:           senderTabLocator{},
		logger:         slog.Default(),
		handlerTimeout: DefaultHandlerTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.builtins = d.defaultBuiltins()
	return d
}

// Registry returns the registry the dispatcher routes through.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch handles env and calls reply exactly once. It never panics,
// including when reply itself panics.
func (d *Dispatcher) Dispatch(ctx context.Context, sender Sender, env Envelope, reply ReplyFunc) {
	var once sync.Once
	deliver := func(resp Response) {
		once.Do(func() {
			if reply != nil {
				reply(resp)
			}
		})
	}
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("dispatch_panic",
				"type", env.Type,
				"error", panicMessage(rec),
			)
			deliver(Fail(errInternal))
		}
	}()
	deliver(d.Handle(ctx, sender, env))
}

// Handle produces the terminal response for env.
func (d *Dispatcher) Handle(ctx context.Context, sender Sender, env Envelope) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	started := d.now()
	route := routeUnknown

	d.logger.Info("message_received",
		"type", env.Type,
		"from", sender.From(),
	)

	resp := d.route(ctx, sender, env, &route)
	resp = normalize(resp)

	outcome := outcomeSuccess
	if !resp.Success {
		outcome = outcomeFailure
	}
	elapsed := d.now().Sub(started)
	if d.recorder != nil {
		d.recorder.ObserveMessage(route, outcome, elapsed)
	}
	if resp.Success {
		d.logger.Info("message_handled",
			"type", env.Type,
			"route", route,
			"latency_ms", elapsed.Milliseconds(),
		)
	} else {
		d.logger.Warn("message_failed",
			"type", env.Type,
			"route", route,
			"error", resp.Error,
			"latency_ms", elapsed.Milliseconds(),
		)
	}
	return resp
}

func (d *Dispatcher) route(ctx context.Context, sender Sender, env Envelope, route *string) Response {
	if strings.TrimSpace(env.Type) == "" {
		return Fail("Message type is required")
	}
	if !d.limiter.allow(sender.Key(), d.now()) {
		return Fail(errRateLimited).WithStatus(http.StatusTooManyRequests)
	}
	if prefix, handler, ok := d.registry.match(env.Type); ok {
		*route = prefix
		return d.invoke(ctx, handler, env)
	}
	if builtin, ok := d.builtins[env.Type]; ok {
		*route = routeBuiltin
		return builtin(ctx, sender, env)
	}
	d.logger.Error("unknown_message_type", "type", env.Type)
	return Fail(errUnknownMessageType).WithMessage(d.unknownAPIMessage(env.Type))
}

func (d *Dispatcher) unknownAPIMessage(msgType string) string {
	return fmt.Sprintf("Unknown API message type: %s. Supported prefixes: %s",
		msgType, strings.Join(d.registry.ListPrefixes(), ", "))
}

type handlerResult struct {
	resp Response
}

// invoke runs the handler behind a recover boundary and the handler deadline.
// A handler that outlives the deadline completes into a discarded slot.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, env Envelope) Response {
	if d.handlerTimeout <= 0 {
		return callHandler(ctx, handler, env)
	}

	ctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	result := make(chan handlerResult, 1)
	go func() {
		result <- handlerResult{resp: callHandler(ctx, handler, env)}
	}()

	select {
	case r := <-result:
		return r.resp
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failf("Handler timed out: %s", env.Type)
		}
		return Fail(ctx.Err().Error())
	}
}

func callHandler(ctx context.Context, handler Handler, env Envelope) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = Fail(panicMessage(rec))
		}
	}()
	out, err := handler.HandleMessage(ctx, env.Type, env.Data)
	if err != nil {
		return Fail(err.Error())
	}
	return out
}

// normalize enforces the Response invariants.
func normalize(resp Response) Response {
	if resp.Success {
		resp.Error = ""
		return resp
	}
	if strings.TrimSpace(resp.Error) == "" {
		resp.Error = errUnknown
	}
	return resp
}

func panicMessage(rec any) string {
	switch v := rec.(type) {
	case error:
		return v.Error()
	case string:
		return v
	default:
		return errUnknown
	}
}
