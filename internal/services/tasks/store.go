package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sidebridge/internal/storage"
)

// ErrStoreClosed is returned for operations after Close.
var ErrStoreClosed = errors.New("task store is closed")

// Store owns the task collection. Every operation runs on a single goroutine,
// and a mutation's durable write completes before the next operation starts.
type Store struct {
	kv     *storage.Service
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// owned by the loop goroutine
	tasks map[string]Task
	order []string // insertion order

	ops       chan op
	stop      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

type op struct {
	run  func() (mutated bool)
	done chan struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// OpenStore loads tasks from kv (nil means memory only), seeds the demo tasks
// into an empty store when seed is set, and starts the owner goroutine.
func OpenStore(ctx context.Context, kv *storage.Service, seed bool, opts ...StoreOption) (*Store, error) {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		now:    time.Now,
		newID:  func() string { return "task_" + uuid.NewString() },
		tasks:  make(map[string]Task),
		ops:    make(chan op),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	go s.loop()

	if seed && len(s.order) == 0 {
		for _, req := range demoTasks {
			if _, err := s.Create(ctx, req); err != nil {
				s.Close()
				return nil, fmt.Errorf("seed demo tasks: %w", err)
			}
		}
		s.logger.Info("demo_tasks_seeded", "count", len(demoTasks))
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	if s.kv == nil {
		return nil
	}
	var stored []Task
	err := s.kv.GetJSON(ctx, storage.KeyTasks, &stored)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		// start empty on a corrupt document
		s.logger.Error("tasks_load_failed", "error", err)
		return nil
	}
	for _, t := range stored {
		if _, dup := s.tasks[t.ID]; dup {
			continue
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	s.logger.Info("tasks_loaded", "count", len(s.order))
	return nil
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case o := <-s.ops:
			if o.run() {
				s.persist()
			}
			close(o.done)
		}
	}
}

// persist writes the collection in insertion order. Failures are logged only.
func (s *Store) persist() {
	if s.kv == nil {
		return
	}
	snapshot := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, s.tasks[id])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.kv.SetJSON(ctx, storage.KeyTasks, snapshot); err != nil {
		s.logger.Error("tasks_save_failed", "count", len(snapshot), "error", err)
	}
}

// do runs fn on the owner goroutine and waits for it, including its durable write.
func (s *Store) do(ctx context.Context, fn func() bool) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	o := op{run: fn, done: make(chan struct{})}
	select {
	case s.ops <- o:
	case <-s.stop:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-o.done
	return nil
}

// Close stops the owner goroutine after the current operation.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
	})
	<-s.done
}

// Len returns the number of tasks.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.do(ctx, func() bool {
		n = len(s.order)
		return false
	})
	return n, err
}

// List returns tasks newest first (later insertion first on equal timestamps),
// filtered and then paged.
func (s *Store) List(ctx context.Context, q TaskQuery) ([]Task, error) {
	var out []Task
	err := s.do(ctx, func() bool {
		out = make([]Task, 0, len(s.order))
		for i := len(s.order) - 1; i >= 0; i-- {
			t := s.tasks[s.order[i]]
			if q.Completed != nil && t.Completed != *q.Completed {
				continue
			}
			if q.Priority != "" && t.Priority != q.Priority {
				continue
			}
			out = append(out, t)
		}
		return false
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []Task{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	var (
		task  Task
		found bool
	)
	err := s.do(ctx, func() bool {
		task, found = s.tasks[id]
		return false
	})
	if err != nil {
		return Task{}, err
	}
	if !found {
		return Task{}, &NotFoundError{ID: id}
	}
	return task, nil
}

func (s *Store) Create(ctx context.Context, req CreateTaskRequest) (Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Task{}, invalid("Task title is required")
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return Task{}, invalid("Invalid priority: %s", priority)
	}

	var task Task
	err := s.do(ctx, func() bool {
		now := s.now()
		task = Task{
			ID:          s.newID(),
			Title:       title,
			Description: strings.TrimSpace(req.Description),
			Priority:    priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.tasks[task.ID] = task
		s.order = append(s.order, task.ID)
		return true
	})
	return task, err
}

func (s *Store) Update(ctx context.Context, req UpdateTaskRequest) (Task, error) {
	if req.Priority != nil && !req.Priority.Valid() {
		return Task{}, invalid("Invalid priority: %s", *req.Priority)
	}

	var (
		task  Task
		opErr error
	)
	err := s.do(ctx, func() bool {
		current, ok := s.tasks[req.ID]
		if !ok {
			opErr = &NotFoundError{ID: req.ID}
			return false
		}
		next := current
		if req.Title != nil {
			next.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			next.Description = strings.TrimSpace(*req.Description)
		}
		if req.Completed != nil {
			next.Completed = *req.Completed
		}
		if req.Priority != nil {
			next.Priority = *req.Priority
		}
		if strings.TrimSpace(next.Title) == "" {
			opErr = invalid("Task title cannot be empty")
			return false
		}
		next.UpdatedAt = s.now()
		s.tasks[req.ID] = next
		task = next
		return true
	})
	if err != nil {
		return Task{}, err
	}
	return task, opErr
}

func (s *Store) Delete(ctx context.Context, id string) error {
	var opErr error
	err := s.do(ctx, func() bool {
		if _, ok := s.tasks[id]; !ok {
			opErr = &NotFoundError{ID: id}
			return false
		}
		delete(s.tasks, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return opErr
}

// Toggle flips completion atomically with respect to every other operation.
func (s *Store) Toggle(ctx context.Context, id string) (Task, error) {
	var (
		task  Task
		opErr error
	)
	err := s.do(ctx, func() bool {
		current, ok := s.tasks[id]
		if !ok {
			opErr = &NotFoundError{ID: id}
			return false
		}
		current.Completed = !current.Completed
		current.UpdatedAt = s.now()
		s.tasks[id] = current
		task = current
		return true
	})
	if err != nil {
		return Task{}, err
	}
	return task, opErr
}
