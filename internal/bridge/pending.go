package bridge

import (
	"errors"
	"sync"
)

// ErrChannelClosed is returned when registering on a closed pending table.
var ErrChannelClosed = errors.New("channel closed")

// PendingRequests correlates replies with outstanding requests on a
// long-lived connection. Each slot is buffered so a resolver never blocks,
// and a slot dropped on timeout silently swallows a late reply.
type PendingRequests struct {
	mu      sync.Mutex
	pending map[string]chan Response
	err     error
	closed  bool
}

// NewPendingRequests creates an empty table.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{pending: make(map[string]chan Response)}
}

// Register reserves a slot for id.
func (p *PendingRequests) Register(id string) (<-chan Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if p.err != nil {
			return nil, p.err
		}
		return nil, ErrChannelClosed
	}
	slot := make(chan Response, 1)
	p.pending[id] = slot
	return slot, nil
}

// Resolve delivers resp to id's slot. It reports false for unknown or dropped ids.
func (p *PendingRequests) Resolve(id string, resp Response) bool {
	slot := p.take(id)
	if slot == nil {
		return false
	}
	slot <- resp
	close(slot)
	return true
}

// Drop releases id's slot without a reply.
func (p *PendingRequests) Drop(id string) {
	if slot := p.take(id); slot != nil {
		close(slot)
	}
}

// FailAll closes every slot and rejects new registrations with err.
func (p *PendingRequests) FailAll(err error) {
	p.mu.Lock()
	slots := make([]chan Response, 0, len(p.pending))
	for id, slot := range p.pending {
		slots = append(slots, slot)
		delete(p.pending, id)
	}
	p.closed = true
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()

	for _, slot := range slots {
		close(slot)
	}
}

// Err returns the error the table was failed with.
func (p *PendingRequests) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Len returns the number of outstanding requests.
func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *PendingRequests) take(id string) chan Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := p.pending[id]
	if slot == nil {
		return nil
	}
	delete(p.pending, id)
	return slot
}
