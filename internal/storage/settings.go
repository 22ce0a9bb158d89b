package storage

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys.
const (
	KeyFirstRun        = "isFirstRun"
	KeySettings        = "settings"
	KeyUserPreferences = "userPreferences"
	KeyExtensionData   = "extensionData"
	KeyTasks           = "tasks"
)

// Settings is the free-form settings document. theme, notifications and
// autoProcess are always present after Setup.
type Settings map[string]any

// DefaultSettings returns the first-run settings.
func DefaultSettings() Settings {
	return Settings{
		"theme":         "light",
		"notifications": true,
		"autoProcess":   false,
	}
}

// Setup writes the first-run defaults unless isFirstRun is already false.
// It reports whether defaults were written.
func (s *Service) Setup(ctx context.Context) (bool, error) {
	var firstRun bool
	err := s.GetJSON(ctx, KeyFirstRun, &firstRun)
	switch {
	case errors.Is(err, ErrNotFound):
		firstRun = true
	case err != nil:
		s.logger.Error("storage_setup_failed", "error", err)
		return false, err
	}

	if !firstRun {
		s.logger.Info("storage_already_initialized")
		return false, nil
	}

	defaults := map[string]any{
		KeyFirstRun:        true,
		KeySettings:        DefaultSettings(),
		KeyUserPreferences: map[string]any{},
		KeyExtensionData:   map[string]any{},
	}
	if err := s.SetMany(ctx, defaults); err != nil {
		s.logger.Error("storage_setup_failed", "error", err)
		return false, err
	}
	s.logger.Info("storage_initialized_with_defaults")
	return true, nil
}

// MarkInitialized records that first-run setup has completed.
func (s *Service) MarkInitialized(ctx context.Context) error {
	return s.SetJSON(ctx, KeyFirstRun, false)
}

// GetSettings returns the stored settings, or an empty document when none exist.
func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	settings := Settings{}
	err := s.GetJSON(ctx, KeySettings, &settings)
	if errors.Is(err, ErrNotFound) {
		return Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if settings == nil {
		settings = Settings{}
	}
	return settings, nil
}

// UpdateSettings shallow-merges patch into the stored settings and returns the result.
func (s *Service) UpdateSettings(ctx context.Context, patch Settings) (Settings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		current[k] = v
	}
	if err := s.SetJSON(ctx, KeySettings, current); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return current, nil
}
