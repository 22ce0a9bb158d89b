// Package client holds the surface-side view of requests sent to the background process.
package client

import (
	"context"
	"sync"

	"sidebridge/internal/bridge"
)

const (
	errNoAutoLoad = "No autoLoad message configured"
	errUnknown    = "Unknown error"
)

// Policy decides which settlement wins when sends overlap.
type Policy int

const (
	// LatestIssued applies a settlement only if it belongs to the most recent send.
	LatestIssued Policy = iota
	// ArrivalOrder applies every settlement; whichever settles last wins.
	ArrivalOrder
)

func (p Policy) String() string {
	switch p {
	case ArrivalOrder:
		return "arrival_order"
	default:
		return "latest_issued"
	}
}

// State is the declarative view of one request lifecycle.
// An empty Error means no error.
type State[T any] struct {
	Data    *T
	Loading bool
	Error   string
}

// Options configures a RequestState.
type Options struct {
	AutoLoad        string // message type sent on mount and by Reload
	AutoLoadPayload any
	Policy          Policy
}

// RequestState tracks {data, loading, error} for requests issued through a Caller.
type RequestState[T any] struct {
	caller   bridge.Caller
	opts     Options
	onChange func(State[T])

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu is held from mutation through onChange so observers see
	// transitions in the order they were applied.
	notifyMu sync.Mutex
	mu       sync.Mutex
	state    State[T]
	seq      uint64
	closed   bool

	inflight sync.WaitGroup
}

// Mount creates the state and, when AutoLoad is set, issues the auto-load send.
// Loading is already true when Mount returns in that case. onChange may be nil;
// it must not call Send, Reload or Reset.
func Mount[T any](ctx context.Context, caller bridge.Caller, opts Options, onChange func(State[T])) *RequestState[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &RequestState[T]{
		caller:   caller,
		opts:     opts,
		onChange: onChange,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if opts.AutoLoad != "" {
		seq := s.begin()
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.complete(s.ctx, seq, opts.AutoLoad, opts.AutoLoadPayload)
		}()
	}
	return s
}

// Send issues msgType with payload and returns the raw response whatever the outcome.
func (s *RequestState[T]) Send(ctx context.Context, msgType string, payload any) bridge.Response {
	seq := s.begin()
	s.inflight.Add(1)
	defer s.inflight.Done()
	return s.complete(ctx, seq, msgType, payload)
}

// Reload re-issues the auto-load message. Without one it fails locally.
func (s *RequestState[T]) Reload(ctx context.Context) bridge.Response {
	if s.opts.AutoLoad == "" {
		return bridge.Fail(errNoAutoLoad)
	}
	return s.Send(ctx, s.opts.AutoLoad, s.opts.AutoLoadPayload)
}

// Reset clears the state without contacting the transport.
func (s *RequestState[T]) Reset() {
	s.update(func() bool {
		s.seq++
		s.state = State[T]{}
		return true
	})
}

// Snapshot returns the current state.
func (s *RequestState[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until every in-flight send has settled.
func (s *RequestState[T]) Wait() {
	s.inflight.Wait()
}

// Unmount cancels in-flight sends; later settlements no longer touch the state.
func (s *RequestState[T]) Unmount() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *RequestState[T]) begin() uint64 {
	var seq uint64
	s.update(func() bool {
		s.seq++
		seq = s.seq
		if s.closed {
			return false
		}
		s.state.Loading = true
		s.state.Error = ""
		return true
	})
	return seq
}

func (s *RequestState[T]) complete(ctx context.Context, seq uint64, msgType string, payload any) bridge.Response {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	resp := s.caller.Call(callCtx, msgType, payload)
	s.settle(seq, resp)
	return resp
}

func (s *RequestState[T]) settle(seq uint64, resp bridge.Response) {
	next := State[T]{}
	if resp.Success {
		var data T
		if resp.HasData() {
			if err := resp.DecodeData(&data); err != nil {
				next.Error = err.Error()
			} else {
				next.Data = &data
			}
		}
	} else {
		next.Error = resp.Error
		if next.Error == "" {
			next.Error = errUnknown
		}
	}

	s.update(func() bool {
		if s.closed {
			return false
		}
		if s.opts.Policy == LatestIssued && seq != s.seq {
			return false
		}
		s.state = next
		return true
	})
}

// update applies mutate and notifies onChange when it reports a change.
func (s *RequestState[T]) update(mutate func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := mutate()
	snapshot := s.state
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(snapshot)
	}
}
