package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/lingualink/internal/transport"
)

// Handler serves /ws/stream. Each upgraded connection runs one [Session].
type Handler struct {
	cfg    Config
	deps   Deps
	accept transport.AcceptOptions

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates a stream endpoint. Sessions outlive their HTTP request
// context and are only stopped by [Handler.Close] or their client.
func NewHandler(cfg Config, deps Deps, accept transport.AcceptOptions) *Handler {
	base, cancel := context.WithCancel(context.Background())
	return &Handler{cfg: cfg, deps: deps, accept: accept, base: base, cancel: cancel}
}

// ServeHTTP upgrades the request and blocks for the lifetime of the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	conn, err := transport.Accept(w, r, h.accept)
	if err != nil {
		slog.Warn("stream: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	s := NewSession(uuid.NewString(), conn, h.cfg, h.deps)
	if err := s.Run(ctx); err != nil && !transport.IsDisconnect(err) {
		slog.Warn("stream: session ended with error", "session_id", s.ID(), "error", err)
	}
}

// Close stops every running session and waits for them to return.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	return nil
}

// track registers one more running connection unless the handler is closed.
func (h *Handler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}
