package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/digitalfortress-tech/localstorage-slim/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server represents a standalone metrics HTTP server
type Server struct {
	httpServer *http.Server
	addr       string
	path       string
	listenAddr string
	registry   *prometheus.Registry
	log        zerolog.Logger
	ready      bool
	mu         sync.RWMutex
}

// NewServer creates a new metrics server exposing registry at path
func NewServer(addr, path string, registry *prometheus.Registry) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{
		addr:     addr,
		path:     path,
		registry: registry,
		log:      logger.WithComponent("metrics.server"),
	}
}

// Start starts the metrics server
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	mux := http.NewServeMux()
	if s.registry != nil {
		mux.Handle(s.path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	} else {
		mux.Handle(s.path, promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listenAddr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	s.ready = true
	s.log.Info().Str("addr", s.listenAddr).Str("path", s.path).Msg("Metrics server started")

	return nil
}

// Stop gracefully stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping metrics server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		//nolint:errcheck // Ignore close error if shutdown failed
		_ = s.httpServer.Close()
		return err
	}

	s.ready = false
	s.log.Info().Msg("Metrics server stopped")

	return nil
}

// Ready returns true if the server is ready
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Addr returns the address the server is listening on, once started
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}
