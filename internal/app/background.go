// Package app assembles the background process: storage, services, the
// dispatcher and every channel surfaces can reach it through.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sidebridge/internal/bridge"
	"sidebridge/internal/config"
	httpapi "sidebridge/internal/microservices/http-api"
	"sidebridge/internal/microservices/tcp"
	"sidebridge/internal/microservices/websocket"
	"sidebridge/internal/middleware/auth"
	"sidebridge/internal/observability"
	"sidebridge/internal/services/apiclient"
	"sidebridge/internal/services/llm"
	"sidebridge/internal/services/settings"
	"sidebridge/internal/services/tasks"
	"sidebridge/internal/services/users"
	"sidebridge/internal/storage"
)

// StorageChangedEvent is pushed to every connected surface after a write.
const StorageChangedEvent = "STORAGE_CHANGED"

type Background struct {
	Registry   *bridge.Registry
	Dispatcher *bridge.Dispatcher
	Storage    *storage.Service
	Tasks      *tasks.Store
	Metrics    *observability.Metrics // nil when disabled
	Hub        *websocket.Hub
	TCP        *tcp.TCPServer
	HTTP       *httpapi.Server

	logger        *slog.Logger
	hubCtx        context.Context
	stopHub       context.CancelFunc
	stopWatching  func()
	wg            sync.WaitGroup
	errs          chan error
	shutdownOnce  sync.Once
	shutdownError error
}

// New wires the background from cfg. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Background, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	kv := storage.NewService(store, logger)
	firstRun, err := kv.Setup(ctx)
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to initialise storage: %w", err)
	}
	logger.Info("storage_ready", "first_run", firstRun)

	taskStore, err := tasks.OpenStore(ctx, kv, cfg.SeedDemoTasks, tasks.WithLogger(logger))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	api := apiclient.New(cfg.APIBaseURL, logger)
	registry := bridge.NewRegistry()
	registry.MustRegister(tasks.Prefix, tasks.NewService(taskStore, logger))
	registry.MustRegister(users.Prefix, users.NewService(api, logger))
	registry.MustRegister(llm.Prefix, llm.NewService(api, logger))
	registry.MustRegister(settings.Prefix, settings.NewService(kv, logger))

	opts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		bridge.WithHandlerTimeout(cfg.HandlerTimeout),
	}
	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
		opts = append(opts, bridge.WithRecorder(metrics))
	}
	dispatcher := bridge.NewDispatcher(registry, opts...)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := websocket.NewHub(dispatcher, logger)

	var tcpOpts []tcp.Option
	deps := httpapi.Deps{
		Dispatcher: dispatcher,
		Prefixes:   registry,
		Storage:    kv,
		WebSocket:  websocket.WSHandler(hubCtx, hub),
		Logger:     logger,
	}
	if cfg.AuthEnabled() {
		tokens := auth.NewTokenService(cfg.SenderSecret, 0)
		tcpOpts = append(tcpOpts, tcp.WithValidator(tokens))
		deps.Validator = tokens
	}
	if metrics != nil {
		hub.SetObserver(metrics)
		tcpOpts = append(tcpOpts, tcp.WithObserver(metrics))
		deps.Metrics = metrics
	}
	tcpServer := tcp.NewServer(cfg.TCPAddr(), dispatcher, logger, tcpOpts...)
	httpServer := httpapi.NewServer(cfg.HTTPAddr(), httpapi.NewRouter(deps), logger)

	b := &Background{
		Registry:   registry,
		Dispatcher: dispatcher,
		Storage:    kv,
		Tasks:      taskStore,
		Metrics:    metrics,
		Hub:        hub,
		TCP:        tcpServer,
		HTTP:       httpServer,
		logger:     logger,
		hubCtx:     hubCtx,
		stopHub:    stopHub,
		errs:       make(chan error, 2),
	}
	b.stopWatching = kv.OnChanged(func(change storage.Change) {
		hub.Broadcast(StorageChangedEvent, change)
		tcpServer.Manager.BroadcastEvent(StorageChangedEvent, change)
	})
	return b, nil
}

// Start binds both listeners and serves in the background. Serve failures
// are reported on Errors.
func (b *Background) Start() error {
	if err := b.TCP.Listen(); err != nil {
		return err
	}
	if err := b.HTTP.Listen(); err != nil {
		b.TCP.Stop(context.Background())
		return err
	}

	b.wg.Add(3)
	go func() {
		defer b.wg.Done()
		b.Hub.Run(b.hubCtx)
	}()
	go func() {
		defer b.wg.Done()
		if err := b.TCP.Serve(); err != nil {
			b.errs <- fmt.Errorf("tcp: %w", err)
		}
	}()
	go func() {
		defer b.wg.Done()
		if err := b.HTTP.Serve(); err != nil {
			b.errs <- fmt.Errorf("http: %w", err)
		}
	}()

	b.logger.Info("background_started",
		"tcp_addr", b.TCP.ListenAddr(),
		"http_addr", b.HTTP.ListenAddr(),
		"prefixes", b.Registry.ListPrefixes(),
	)
	return nil
}

func (b *Background) Errors() <-chan error {
	return b.errs
}

// Shutdown stops the channels, then the services, then storage.
func (b *Background) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		var errs []error
		if err := b.HTTP.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		if err := b.TCP.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tcp: %w", err))
		}
		b.stopHub()
		b.wg.Wait()

		b.stopWatching()
		b.Tasks.Close()
		if err := b.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		b.shutdownError = errors.Join(errs...)
		b.logger.Info("background_stopped")
	})
	return b.shutdownError
}
