package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sidebridge/internal/app"
	"sidebridge/internal/config"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting_background",
		"env", cfg.GoEnv,
		"store", cfg.StoreBackend,
		"tcp_addr", cfg.TCPAddr(),
		"http_addr", cfg.HTTPAddr(),
		"auth", cfg.AuthEnabled(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	bg, err := app.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("background_init_failed", "error", err.Error())
		os.Exit(1)
	}
	if err := bg.Start(); err != nil {
		logger.Error("background_start_failed", "error", err.Error())
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
	case err := <-bg.Errors():
		logger.Error("server_error", "error", err.Error())
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = bg.Shutdown(shutdownCtx)
	cancel()
	if err != nil {
		logger.Error("shutdown_failed", "error", err.Error())
		exitCode = 1
	} else {
		logger.Info("server_stopped_gracefully")
	}
	os.Exit(exitCode)
}

// loadConfig reads and validates the configuration and sets the gin mode
// for the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, nil
}
