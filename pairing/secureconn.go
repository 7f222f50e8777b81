package pairing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/floegence/d2dpair/crypto/ukey2"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/floegence/d2dpair/transport"
	"github.com/sirupsen/logrus"
)

// ErrRecvBufferExceeded indicates buffered plaintext exceeded MaxBufferedBytes.
var ErrRecvBufferExceeded = errors.New("recv buffer exceeded")

// SecureConn is a net.Conn that seals every Write chunk into one record.
//
// A single read loop decrypts records strictly in order. Any read failure is
// sticky and closes the connection; the record keys are wiped when the read
// loop exits.
//
// Deadlines follow net.Conn: an expired deadline fails Read or Write with
// os.ErrDeadlineExceeded. A read timeout leaves the connection usable. A write
// that times out after its record was sealed is sticky.
type SecureConn struct {
	t                transport.BinaryTransport
	log              logrus.FieldLogger
	maxBufferedBytes int
	maxPlain         int
	nextProtocol     ukey2.NextProtocol
	sessionUnique    []byte

	ctx    context.Context
	cancel context.CancelFunc

	ccMu sync.Mutex // Guards cc: ConnectionContext is not safe for concurrent use.
	cc   *ukey2.ConnectionContext

	sendMu   sync.Mutex // Keeps records on the wire in sequence order.
	writeErr error      // Sticky write error.

	mu      sync.Mutex
	cond    *sync.Cond
	buf     bytes.Buffer
	readErr error
	closed  bool

	readDeadline  time.Time
	readTimer     *time.Timer
	writeDeadline time.Time

	closeOnce sync.Once
	closeErr  error
	loopDone  chan struct{}
}

func newSecureConn(t transport.BinaryTransport, cc *ukey2.ConnectionContext, maxBufferedBytes int, log logrus.FieldLogger) *SecureConn {
	su, _ := cc.SessionUnique()
	c := &SecureConn{
		t:                t,
		cc:               cc,
		log:              log,
		maxBufferedBytes: maxBufferedBytes,
		maxPlain:         cc.MaxPlaintextBytes(),
		nextProtocol:     cc.NextProtocol(),
		sessionUnique:    su,
		loopDone:         make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.cond = sync.NewCond(&c.mu)
	go c.readLoop()
	return c
}

// NextProtocol reports the record protocol negotiated during pairing.
func (c *SecureConn) NextProtocol() ukey2.NextProtocol { return c.nextProtocol }

// SessionUnique returns the channel-binding value shared by both peers.
func (c *SecureConn) SessionUnique() []byte {
	return append([]byte(nil), c.sessionUnique...)
}

func (c *SecureConn) readLoop() {
	defer close(c.loopDone)
	defer func() {
		c.ccMu.Lock()
		c.cc.Wipe()
		c.ccMu.Unlock()
	}()
	for {
		rec, err := c.t.ReadBinary(c.ctx)
		if err != nil {
			c.failRead(err)
			return
		}
		c.ccMu.Lock()
		plain, err := c.cc.Decrypt(rec, nil)
		c.ccMu.Unlock()
		if err != nil {
			c.log.WithError(err).Warn("dropping connection after record failure")
			c.failRead(pairerrors.Wrap(pairerrors.StageSecure, pairerrors.ClassifyRecordCode(err), err))
			return
		}
		c.mu.Lock()
		if c.buf.Len()+len(plain) > c.maxBufferedBytes {
			c.mu.Unlock()
			c.failRead(ErrRecvBufferExceeded)
			return
		}
		_, _ = c.buf.Write(plain)
		c.cond.Broadcast()
		c.mu.Unlock()
	}
}

func (c *SecureConn) failRead(err error) {
	if errors.Is(err, transport.ErrClosed) || c.ctx.Err() != nil {
		err = io.EOF
	}
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	c.cond.Broadcast()
	c.mu.Unlock()
	_ = c.Close()
}

func (c *SecureConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if !c.readDeadline.IsZero() && !time.Now().Before(c.readDeadline) {
			return 0, os.ErrDeadlineExceeded
		}
		if c.buf.Len() > 0 {
			return c.buf.Read(p)
		}
		if c.readErr != nil {
			return 0, c.readErr
		}
		if c.closed {
			return 0, io.EOF
		}
		c.cond.Wait()
	}
}

// Write splits p into record-sized chunks.
func (c *SecureConn) Write(p []byte) (int, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.ctx.Err() != nil {
		return 0, io.ErrClosedPipe
	}
	if c.maxPlain <= 0 && len(p) > 0 {
		return 0, ukey2.ErrRecordTooLarge
	}

	ctx := c.ctx
	c.mu.Lock()
	deadline := c.writeDeadline
	c.mu.Unlock()
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(c.ctx, deadline)
		defer cancel()
	}

	total := 0
	for len(p) > 0 {
		if ctx.Err() != nil && c.ctx.Err() == nil {
			return total, os.ErrDeadlineExceeded
		}
		chunk := p
		if len(chunk) > c.maxPlain {
			chunk = p[:c.maxPlain]
		}
		c.ccMu.Lock()
		rec, err := c.cc.Encrypt(chunk, nil)
		c.ccMu.Unlock()
		if err != nil {
			c.writeErr = pairerrors.Wrap(pairerrors.StageSecure, pairerrors.ClassifyRecordCode(err), err)
			return total, c.writeErr
		}
		if err := c.t.WriteBinary(ctx, rec); err != nil {
			switch {
			case c.ctx.Err() != nil:
				err = io.ErrClosedPipe
			case errors.Is(err, context.DeadlineExceeded):
				err = os.ErrDeadlineExceeded
			}
			c.writeErr = err
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

// Close stops the read loop and closes the transport.
func (c *SecureConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.readTimer != nil {
			c.readTimer.Stop()
		}
		c.cond.Broadcast()
		c.mu.Unlock()
		c.cancel()
		c.closeErr = c.t.Close()
	})
	return c.closeErr
}

func (c *SecureConn) LocalAddr() net.Addr  { return pairAddr("d2dpair-local") }
func (c *SecureConn) RemoteAddr() net.Addr { return pairAddr("d2dpair-remote") }

func (c *SecureConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// SetReadDeadline bounds pending and future Read calls. A zero t clears it.
func (c *SecureConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.readDeadline = t
	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
	if !t.IsZero() {
		c.readTimer = time.AfterFunc(time.Until(t), func() {
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		})
	}
	c.cond.Broadcast()
	return nil
}

// SetWriteDeadline bounds Write calls that start after it. A zero t clears it.
func (c *SecureConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.writeDeadline = t
	return nil
}

type pairAddr string

func (a pairAddr) Network() string { return "d2dpair" }
func (a pairAddr) String() string  { return string(a) }
