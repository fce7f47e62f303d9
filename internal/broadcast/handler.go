package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/lingualink/internal/observe"
	"github.com/MrWong99/lingualink/internal/transport"
)

// Handler serves /ws/broadcast. Clients register one or more user ids and
// then only receive; their entries are evicted when the connection ends.
type Handler struct {
	registry *Registry
	metrics  *observe.Metrics
	accept   transport.AcceptOptions

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewHandler creates the broadcast endpoint over registry.
func NewHandler(registry *Registry, accept transport.AcceptOptions, m *observe.Metrics) *Handler {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Handler{registry: registry, metrics: m, accept: accept, base: base, cancel: cancel}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.wg.Done()

	conn, err := transport.Accept(w, r, h.accept)
	if err != nil {
		slog.Warn("broadcast: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(h.base)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()

	defer func() {
		for _, id := range h.registry.EvictConn(conn) {
			slog.Info("broadcast: listener disconnected", "user_id", id)
		}
		_ = conn.Close()
	}()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if !transport.IsDisconnect(err) {
				slog.Debug("broadcast: read failed", "error", err)
			}
			return
		}
		h.handle(ctx, conn, data)
	}
}

func (h *Handler) handle(ctx context.Context, conn *transport.Conn, data []byte) {
	req, err := parseRequest(data)
	if err != nil {
		h.metrics.RecordMessage(ctx, "broadcast", "in", "invalid")
		h.reply(ctx, conn, newError(err.Error()))
		return
	}
	h.metrics.RecordMessage(ctx, "broadcast", "in", req.Type)

	switch req.Type {
	case TypeRegister:
		lang, err := h.registry.Register(req.UserID, req.PreferredLanguage, conn)
		if err != nil {
			h.reply(ctx, conn, newError(err.Error()))
			return
		}
		slog.Info("broadcast: listener registered", "user_id", req.UserID, "preferred_language", lang,
			"listeners", h.registry.Len())
		h.reply(ctx, conn, RegistrationSuccess{
			Type:              TypeRegistrationSuccess,
			UserID:            req.UserID,
			PreferredLanguage: lang,
		})

	case TypeUpdatePreference:
		if _, err := h.registry.UpdatePreference(req.UserID, req.PreferredLanguage); err != nil {
			h.reply(ctx, conn, newError(err.Error()))
		}
	}
}

func (h *Handler) reply(ctx context.Context, conn *transport.Conn, v any) {
	t := TypeError
	if m, ok := v.(RegistrationSuccess); ok {
		t = m.Type
	}
	h.metrics.RecordMessage(ctx, "broadcast", "out", t)
	if err := conn.Write(ctx, v); err != nil {
		slog.Debug("broadcast: write failed", "error", err)
	}
}

// Close disconnects every listener and waits for the handlers to return.
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
