package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"parallelcamera/internal/config"
	"parallelcamera/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// httpServer builds a fresh http.Server per start so the daemon can be
// restarted after a stop.
type httpServer struct {
	bind         string
	handler      http.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func newHTTPServer(cfg config.Server, handler http.Handler, logger *slog.Logger) *httpServer {
	return &httpServer{
		bind:         strings.TrimSpace(cfg.Bind),
		handler:      handler,
		readTimeout:  seconds(cfg.ReadTimeoutSeconds, 60),
		writeTimeout: seconds(cfg.WriteTimeoutSeconds, 150),
		logger:       logger,
	}
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func (s *httpServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("server.bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.server, s.listener, s.done = server, listener, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(err))
		}
	}()

	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	s.mu.Lock()
	server, listener, done := s.server, s.listener, s.done
	s.server, s.listener = nil, nil
	s.mu.Unlock()
	if listener == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown incomplete", logging.Error(err))
		_ = server.Close()
	}
	<-done
}

func (s *httpServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
