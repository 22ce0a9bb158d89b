package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

var (
	ErrInvalidPrefix = errors.New("prefix is required")
	ErrNilHandler    = errors.New("handler is nil")
)

// Handler owns one family of message types.
// A returned error is reported to the sender as an unsuccessful Response.
type Handler interface {
	HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msgType string, data json.RawMessage) (Response, error)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (Response, error) {
	return f(ctx, msgType, data)
}

type entry struct {
	prefix  string
	handler Handler
}

// Registry maps message-type prefixes to handlers.
//
// Lookup is first-match in registration order, not longest-prefix: with
// "TASK_" registered before "TASKS_", TASKS_CREATE goes to the "TASK_" handler.
// Entries are only ever appended. Register takes the write lock, so runtime
// registration never interleaves with a lookup.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a prefix/handler pair. Duplicate and overlapping prefixes are kept.
func (r *Registry) Register(prefix string, handler Handler) error {
	if prefix == "" {
		return ErrInvalidPrefix
	}
	if handler == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{prefix: prefix, handler: handler})
	return nil
}

// MustRegister is Register for process start-up wiring; it panics on error.
func (r *Registry) MustRegister(prefix string, handler Handler) {
	if err := r.Register(prefix, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the handler of the first entry whose prefix starts msgType.
func (r *Registry) Lookup(msgType string) (Handler, bool) {
	_, handler, ok := r.match(msgType)
	return handler, ok
}

func (r *Registry) match(msgType string) (string, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if strings.HasPrefix(msgType, e.prefix) {
			return e.prefix, e.handler, true
		}
	}
	return "", nil, false
}

// ListPrefixes returns registered prefixes in registration order.
func (r *Registry) ListPrefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.prefix)
	}
	return out
}

// IsRoutable reports whether some registered prefix matches msgType.
func (r *Registry) IsRoutable(msgType string) bool {
	_, ok := r.Lookup(msgType)
	return ok
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
