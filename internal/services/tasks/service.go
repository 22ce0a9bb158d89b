// Package tasks implements the TASKS_ handler and its serialized store.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"sidebridge/internal/bridge"
)

// Service answers TASKS_ messages from the Store.
type Service struct {
	store  *Store
	logger *slog.Logger
}

func NewService(store *Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// HandleMessage implements bridge.Handler.
func (s *Service) HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (bridge.Response, error) {
	switch msgType {
	case TypeGetAll:
		var q TaskQuery
		if err := decode(data, &q); err != nil {
			return bridge.Response{}, err
		}
		tasks, err := s.store.List(ctx, q)
		if err != nil {
			return bridge.Response{}, err
		}
		return bridge.OK(tasks).WithMessage(fmt.Sprintf("Found %d tasks", len(tasks))), nil

	case TypeGetByID:
		var req IDRequest
		if err := decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		task, err := s.store.Get(ctx, req.ID)
		if err != nil {
			return bridge.Response{}, err
		}
		return bridge.OK(task), nil

	case TypeCreate:
		var req CreateTaskRequest
		if err := decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		task, err := s.store.Create(ctx, req)
		if err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("task_created", "id", task.ID, "priority", task.Priority)
		return bridge.OK(task).WithMessage("Task created successfully"), nil

	case TypeUpdate:
		var req UpdateTaskRequest
		if err := decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		task, err := s.store.Update(ctx, req)
		if err != nil {
			return bridge.Response{}, err
		}
		return bridge.OK(task).WithMessage("Task updated successfully"), nil

	case TypeDelete:
		var req IDRequest
		if err := decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		if err := s.store.Delete(ctx, req.ID); err != nil {
			return bridge.Response{}, err
		}
		s.logger.Info("task_deleted", "id", req.ID)
		return bridge.Response{Success: true, Message: "Task deleted successfully"}, nil

	case TypeToggle:
		var req IDRequest
		if err := decode(data, &req); err != nil {
			return bridge.Response{}, err
		}
		task, err := s.store.Toggle(ctx, req.ID)
		if err != nil {
			return bridge.Response{}, err
		}
		state := "reopened"
		if task.Completed {
			state = "completed"
		}
		return bridge.OK(task).WithMessage("Task " + state), nil

	default:
		return bridge.Failf("Unknown tasks message type: %s", msgType), nil
	}
}

// decode leaves v at its zero value for an absent or null payload.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
