// Package storage is the durable key/value layer behind the background handlers.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a flat key/value backend holding JSON documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// Change lists the keys touched by one write.
type Change struct {
	Keys []string `json:"keys"`
}

// Listener is called after every successful write.
type Listener func(Change)

// Service wraps a Store with JSON helpers and change listeners.
type Service struct {
	store  Store
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewService wraps store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Store returns the underlying backend.
func (s *Service) Store() Store {
	return s.store
}

// OnChanged registers fn for write notifications and returns a function removing it.
func (s *Service) OnChanged(fn Listener) (remove func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) notify(keys []string) {
	if len(keys) == 0 {
		return
	}
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	s.logger.Debug("storage_changed", "keys", keys)
	change := Change{Keys: append([]string(nil), keys...)}
	for _, fn := range listeners {
		fn(change)
	}
}

// GetJSON decodes key into v. It returns ErrNotFound for a missing key.
func (s *Service) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v under key.
func (s *Service) SetJSON(ctx context.Context, key string, v any) error {
	return s.SetMany(ctx, map[string]any{key: v})
}

// SetMany encodes and writes every entry, then notifies once.
func (s *Service) SetMany(ctx context.Context, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw, err := json.Marshal(values[key])
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := s.store.Set(ctx, key, raw); err != nil {
			s.logger.Error("storage_set_failed", "key", key, "error", err)
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	s.logger.Info("storage_saved", "keys", keys)
	s.notify(keys)
	return nil
}

// GetMany returns the raw JSON of each present key. Missing keys are omitted;
// no keys means every key.
func (s *Service) GetMany(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if len(keys) == 0 {
		all, err := s.store.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		keys = all
	}
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		raw, err := s.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		out[key] = json.RawMessage(raw)
	}
	return out, nil
}

// Remove deletes keys and notifies.
func (s *Service) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	s.logger.Info("storage_removed", "keys", keys)
	s.notify(keys)
	return nil
}

// Clear removes everything and notifies with the keys that existed.
func (s *Service) Clear(ctx context.Context) error {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.logger.Info("storage_cleared", "count", len(keys))
	s.notify(keys)
	return nil
}

// Close closes the backend.
func (s *Service) Close() error {
	return s.store.Close()
}
