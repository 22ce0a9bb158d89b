// Package settings answers SETTINGS_ messages from the key/value store.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"sidebridge/internal/bridge"
	"sidebridge/internal/storage"
)

const (
	Prefix = "SETTINGS_"

	TypeGet    = "SETTINGS_GET"
	TypeUpdate = "SETTINGS_UPDATE"
)

type Service struct {
	kv     *storage.Service
	logger *slog.Logger
}

func NewService(kv *storage.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{kv: kv, logger: logger}
}

// HandleMessage implements bridge.Handler.
func (s *Service) HandleMessage(ctx context.Context, msgType string, data json.RawMessage) (bridge.Response, error) {
	switch msgType {
	case TypeGet:
		current, err := s.kv.GetSettings(ctx)
		if err != nil {
			s.logger.Error("settings_get_failed", "error", err)
			return bridge.Response{}, err
		}
		return bridge.OK(current), nil

	case TypeUpdate:
		patch := storage.Settings{}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &patch); err != nil {
				return bridge.Response{}, fmt.Errorf("invalid payload: %w", err)
			}
		}
		updated, err := s.kv.UpdateSettings(ctx, patch)
		if err != nil {
			s.logger.Error("settings_update_failed", "error", err)
			return bridge.Response{}, err
		}
		s.logger.Info("settings_updated", "keys", len(patch))
		return bridge.OK(updated).WithMessage("Settings updated successfully"), nil

	default:
		return bridge.Failf("Unknown settings operation: %s", msgType), nil
	}
}
