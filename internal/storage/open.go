package storage

import (
	"fmt"
	"log/slog"

	"sidebridge/internal/config"
)

// Open builds the backend selected by STORE_BACKEND.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory, "":
		logger.Info("store_opened", "backend", config.StoreMemory)
		return NewMemoryStore(), nil
	case config.StoreRedis:
		store, err := NewRedisStore(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", "backend", config.StoreRedis, "url", cfg.RedisURL)
		return store, nil
	case config.StorePostgres:
		store, err := NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("store_opened", "backend", config.StorePostgres)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
