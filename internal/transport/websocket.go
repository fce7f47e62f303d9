// Package transport adapts coder/websocket connections to the small
// read/write/close surface the session loops need.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultReadLimit bounds a single inbound message. Base64 chunks of a few
// seconds of compressed audio fit comfortably.
const DefaultReadLimit = 4 << 20

// DefaultWriteTimeout bounds a single outbound write so a stalled client
// cannot hold a loop forever.
const DefaultWriteTimeout = 10 * time.Second

// ErrClosed is returned by writes after [Conn.Close].
var ErrClosed = errors.New("transport: connection closed")

// AcceptOptions configures [Accept].
type AcceptOptions struct {
	// ReadLimit is the maximum inbound message size. Default: [DefaultReadLimit].
	ReadLimit int64

	// OriginPatterns lists additional allowed origins (see
	// websocket.AcceptOptions). Empty allows same-origin only.
	OriginPatterns []string

	// InsecureSkipVerify disables origin checks entirely.
	InsecureSkipVerify bool

	// WriteTimeout bounds each write. Default: [DefaultWriteTimeout].
	WriteTimeout time.Duration
}

// Conn is a websocket connection carrying JSON text frames.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Accept upgrades the request. On failure the response has already been
// written.
func Accept(w http.ResponseWriter, r *http.Request, opts AcceptOptions) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     opts.OriginPatterns,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	ws.SetReadLimit(opts.ReadLimit)
	return Wrap(ws, opts.WriteTimeout), nil
}

// Wrap adapts an established websocket connection.
func Wrap(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout, closed: make(chan struct{})}
}

// Read returns the payload of the next message, text or binary.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

// ReadFrame returns the next message with its frame type.
func (c *Conn) ReadFrame(ctx context.Context) (websocket.MessageType, []byte, error) {
	return c.ws.Read(ctx)
}

// Write marshals v to JSON and sends it as one text frame. Safe for
// concurrent use.
func (c *Conn) Write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("transport: marshal: %w", err)
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Close performs a normal closure handshake. Subsequent calls are no-ops.
func (c *Conn) Close() error {
	return c.CloseWith(websocket.StatusNormalClosure, "")
}

// CloseWith closes with an explicit status and reason.
func (c *Conn) CloseWith(code websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close(code, reason)
	})
	return err
}

// IsDisconnect reports whether err is an ordinary end of the connection
// rather than a fault worth logging.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed)
}
