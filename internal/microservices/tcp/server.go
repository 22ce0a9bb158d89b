// Package tcp carries bridge envelopes over newline-delimited JSON frames.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sidebridge/internal/bridge"
)

type TCPServer struct {
	Addr    string
	Manager *ConnectionManager

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*TCPServer)

// WithValidator requires a valid sender token on each connection.
func WithValidator(v TokenValidator) Option {
	return func(s *TCPServer) {
		s.Manager.validator = v
	}
}

// WithObserver reports connection counts, typically to metrics.
func WithObserver(o ConnectionObserver) Option {
	return func(s *TCPServer) {
		s.Manager.observer = o
	}
}

// WithFrameRate sets the per-connection frame rate and burst.
func WithFrameRate(rps float64, burst int) Option {
	return func(s *TCPServer) {
		if rps > 0 && burst > 0 {
			s.Manager.frameRate = rate.Limit(rps)
			s.Manager.frameBurst = burst
		}
	}
}

// WithWriteTimeout bounds each frame write; a peer that does not read within
// it is disconnected.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *TCPServer) {
		if d > 0 {
			s.Manager.writeTimeout = d
		}
	}
}

func NewServer(addr string, receiver bridge.Receiver, logger *slog.Logger, opts ...Option) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &TCPServer{
		Addr:    addr,
		Manager: NewConnectionManager(receiver, logger),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the address. Call Serve afterwards.
func (s *TCPServer) Listen() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server, error: %w", err)
	}
	s.listener = listener
	s.Manager.logger.Info("tcp_server_started", "addr", listener.Addr().String())
	return nil
}

// ListenAddr reports the bound address, useful with ":0".
func (s *TCPServer) ListenAddr() string {
	if s.listener == nil {
		return s.Addr
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Stop is called.
func (s *TCPServer) Serve() error {
	if s.listener == nil {
		return errors.New("tcp server is not listening")
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Manager.logger.Warn("failed_to_accept_connection", "error", err)
			continue
		}
		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.handleConnection(conn)
		}(conn)
	}
}

// Start binds and serves, blocking until Stop.
func (s *TCPServer) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	client := NewClientConnection(conn, s.Manager)
	s.Manager.AddConnection(client)
	client.Listen(s.ctx)
	s.Manager.RemoveConnection(client)
}

// Stop refuses new connections, closes the open ones and waits for their
// handlers, giving up when ctx ends.
func (s *TCPServer) Stop(ctx context.Context) error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	if msg, err := eventFrame("shutdown", nil); err == nil {
		s.Manager.SendAll(msg)
	}
	s.Manager.CloseAllConnections()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.Manager.logger.Info("tcp_server_stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
