// Package server assembles lingualink's HTTP surface: the websocket
// endpoints, the JSON API, health probes and the metrics endpoint, all behind
// the observe middleware.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingualink/internal/health"
	"github.com/MrWong99/lingualink/internal/observe"
)

// Config configures the listener.
type Config struct {
	// ListenAddr is the TCP address to listen on.
	ListenAddr string

	// ShutdownTimeout bounds the drain of in-flight HTTP requests once the
	// run context is cancelled. Default: 15s.
	ShutdownTimeout time.Duration
}

// Routes are the handlers mounted by [New]. Nil handlers are not mounted.
type Routes struct {
	// Stream serves GET /ws/stream.
	Stream http.Handler

	// Broadcast serves GET /ws/broadcast.
	Broadcast http.Handler

	// Publish serves GET /ws/publish, the remote capture feed.
	Publish http.Handler

	// Metrics serves GET /metrics.
	Metrics http.Handler

	// Health serves /health, /healthz and /readyz.
	Health *health.Handler

	// API serves the JSON endpoints.
	API *API
}

// Server is the lingualink HTTP server.
type Server struct {
	cfg     Config
	handler http.Handler
	srv     *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// New builds the mux for routes and wraps it in [observe.Middleware].
func New(cfg Config, routes Routes, m *observe.Metrics) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mount := func(pattern string, h http.Handler) {
		if h != nil {
			mux.Handle(pattern, h)
		}
	}
	mount("GET /ws/stream", routes.Stream)
	mount("GET /ws/broadcast", routes.Broadcast)
	mount("GET /ws/publish", routes.Publish)
	mount("GET /metrics", routes.Metrics)
	if routes.Health != nil {
		routes.Health.Register(mux)
	}
	if routes.API != nil {
		routes.API.Register(mux)
	}

	h := observe.Middleware(m)(mux)
	return &Server{
		cfg:     cfg,
		handler: h,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// OnShutdown registers fn to run when the server starts shutting down.
// Websocket handlers use it to close hijacked connections, which
// [http.Server.Shutdown] does not track.
func (s *Server) OnShutdown(fn func()) {
	s.srv.RegisterOnShutdown(fn)
}

// Addr returns the bound listener address once [Server.Run] is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens and serves until ctx is cancelled, then drains in-flight
// requests within the shutdown timeout. It returns nil after a clean
// shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	slog.Info("http server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Shutdown stops the server immediately if [Server.Run] has not already
// done so.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
