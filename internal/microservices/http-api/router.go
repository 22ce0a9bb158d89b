// Package httpapi serves the bridge over HTTP: one-shot envelopes on
// POST /api/messages plus the websocket port endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sidebridge/internal/microservices/http-api/handler"
	"sidebridge/internal/microservices/http-api/middleware"
	"sidebridge/internal/observability"
	"sidebridge/internal/storage"
)

type Deps struct {
	Dispatcher handler.Dispatcher
	Prefixes   handler.PrefixLister
	Storage    *storage.Service          // optional
	Validator  middleware.TokenValidator // nil disables sender tokens
	Metrics    *observability.Metrics    // optional
	WebSocket  gin.HandlerFunc           // optional
	Logger     *slog.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetrics(deps.Metrics))

	messages := handler.NewMessageHandler(deps.Dispatcher, deps.Prefixes)
	r.GET("/check-conn", messages.CheckConn)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	senderAuth := middleware.SenderAuth(deps.Validator)
	api := r.Group("/api", senderAuth)
	messages.RegisterRoutes(api)
	if deps.Storage != nil {
		handler.NewStorageHandler(deps.Storage).RegisterRoutes(api.Group("/storage"), middleware.RequireSurface("options"))
	}

	if deps.WebSocket != nil {
		r.GET("/ws", senderAuth, deps.WebSocket)
	}
	return r
}

// Server owns the http.Server around the router.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
}

func NewServer(addr string, router http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server, error: %w", err)
	}
	s.listener = listener
	s.logger.Info("http_server_started", "addr", listener.Addr().String())
	return nil
}

func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("http server is not listening")
	}
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.logger.Info("http_server_stopped")
	return err
}
