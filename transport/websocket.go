package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket adapts a gorilla/websocket connection to BinaryTransport.
type WebSocket struct {
	c *websocket.Conn
}

// NewWebSocket wraps c. Only binary messages are accepted on read.
func NewWebSocket(c *websocket.Conn) *WebSocket {
	return &WebSocket{c: c}
}

// UpgraderOptions exposes a small set of websocket upgrader controls.
type UpgraderOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	// ReadLimit caps a single inbound message; zero leaves gorilla's default.
	ReadLimit int64
}

// Upgrade upgrades an HTTP request to a websocket transport.
func Upgrade(w http.ResponseWriter, r *http.Request, opts UpgraderOptions) (*WebSocket, error) {
	up := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     opts.CheckOrigin,
	}
	c, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if opts.ReadLimit > 0 {
		c.SetReadLimit(opts.ReadLimit)
	}
	return &WebSocket{c: c}, nil
}

// DialOptions configures Dial.
type DialOptions struct {
	Header    http.Header
	Dialer    *websocket.Dialer
	ReadLimit int64
}

// Dial opens a websocket transport. The context deadline also bounds the
// websocket opening handshake.
func Dial(ctx context.Context, url string, opts DialOptions) (*WebSocket, *http.Response, error) {
	d := websocket.Dialer{}
	if opts.Dialer != nil {
		d = *opts.Dialer
	}
	if deadline, ok := ctx.Deadline(); ok {
		dl := time.Until(deadline)
		if d.HandshakeTimeout == 0 || d.HandshakeTimeout > dl {
			d.HandshakeTimeout = dl
		}
	}
	c, resp, err := d.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, resp, err
	}
	if opts.ReadLimit > 0 {
		c.SetReadLimit(opts.ReadLimit)
	}
	return &WebSocket{c: c}, resp, nil
}

func (t *WebSocket) ReadBinary(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, hasDeadline := ctx.Deadline()
	_ = t.c.SetReadDeadline(deadline)
	// gorilla/websocket only unblocks ReadMessage through a read deadline.
	defer wakeOnCancel(ctx, t.c.SetReadDeadline)()
	for {
		mt, b, err := t.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, mapTimeout(ctx, err, deadline, hasDeadline)
		}
		switch mt {
		case websocket.BinaryMessage:
			return b, nil
		case websocket.TextMessage:
			return nil, ErrTextFrame
		}
	}
}

func (t *WebSocket) WriteBinary(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, hasDeadline := ctx.Deadline()
	_ = t.c.SetWriteDeadline(deadline)
	defer wakeOnCancel(ctx, t.c.SetWriteDeadline)()
	if err := t.c.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return mapTimeout(ctx, err, deadline, hasDeadline)
	}
	return nil
}

// Close sends a normal close frame on a best-effort basis and closes the connection.
func (t *WebSocket) Close() error {
	_ = t.c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.c.Close()
}

// wakeOnCancel forces a blocked read or write to return once ctx is canceled.
// The returned func must be called when the operation finishes.
func wakeOnCancel(ctx context.Context, setDeadline func(time.Time) error) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	var active atomic.Bool
	active.Store(true)
	stop := context.AfterFunc(ctx, func() {
		if active.Load() {
			_ = setDeadline(time.Now())
		}
	})
	return func() {
		active.Store(false)
		stop()
	}
}

// mapTimeout turns deadline-induced I/O timeouts back into the context error.
func mapTimeout(ctx context.Context, err error, deadline time.Time, hasDeadline bool) error {
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if hasDeadline && !time.Now().Before(deadline) {
		return context.DeadlineExceeded
	}
	return err
}
