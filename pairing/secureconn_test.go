package pairing

import (
	"context"
	"io"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/floegence/d2dpair/crypto/ukey2"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/floegence/d2dpair/transport"
	"github.com/stretchr/testify/require"
)

// tamperTransport flips the last bit of outbound frames once armed.
type tamperTransport struct {
	inner transport.BinaryTransport
	flip  atomic.Bool
}

func (t *tamperTransport) ReadBinary(ctx context.Context) ([]byte, error) {
	return t.inner.ReadBinary(ctx)
}

func (t *tamperTransport) WriteBinary(ctx context.Context, b []byte) error {
	if t.flip.Load() {
		b = append([]byte(nil), b...)
		b[len(b)-1] ^= 1
	}
	return t.inner.WriteBinary(ctx, b)
}

func (t *tamperTransport) Close() error { return t.inner.Close() }

func TestSecureConnCloseGivesPeerEOF(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	require.NoError(t, ini.conn.Close())
	require.NoError(t, ini.conn.Close())

	_, err := resp.conn.Read(make([]byte, 8))
	require.ErrorIs(t, err, io.EOF)
	_, err = ini.conn.Write([]byte("late"))
	require.ErrorIs(t, err, io.ErrClosedPipe)

	select {
	case <-resp.conn.loopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit")
	}
	_, err = resp.conn.cc.Encrypt([]byte("x"), nil)
	require.ErrorIs(t, err, ukey2.ErrInvalidState, "keys must be wiped when the read loop exits")
}

func TestSecureConnTamperedRecordIsSticky(t *testing.T) {
	a, b := transport.Pipe()
	tt := &tamperTransport{inner: a}
	ini, resp := pairOver(t, tt, b, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	tt.flip.Store(true)
	_, err := ini.conn.Write([]byte("corrupted in flight"))
	require.NoError(t, err)

	_, err = resp.conn.Read(make([]byte, 64))
	var pe *pairerrors.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, pairerrors.CodeAuthFailed, pe.Code)
	require.ErrorIs(t, err, ukey2.ErrAuthentication)

	_, err = resp.conn.Read(make([]byte, 64))
	require.ErrorIs(t, err, ukey2.ErrAuthentication)
}

func TestSecureConnBufferLimit(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll, MaxBufferedBytes: 16})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	_, err := ini.conn.Write(make([]byte, 64))
	require.NoError(t, err)
	_, err = resp.conn.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrRecvBufferExceeded)
}

func TestSecureConnReadDeadline(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	require.NoError(t, resp.conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	done := make(chan error, 1)
	go func() {
		_, err := resp.conn.Read(make([]byte, 8))
		done <- err
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)
		var ne net.Error
		require.ErrorAs(t, err, &ne)
		require.True(t, ne.Timeout())
	case <-time.After(2 * time.Second):
		t.Fatal("Read still blocked after its deadline")
	}

	// A timed-out read leaves the connection usable once the deadline is cleared.
	require.NoError(t, resp.conn.SetReadDeadline(time.Time{}))
	_, err := ini.conn.Write([]byte("after"))
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := resp.conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "after", string(buf[:n]))
}

func TestSecureConnDeadlineWakesBlockedRead(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	done := make(chan error, 1)
	go func() {
		_, err := resp.conn.Read(make([]byte, 8))
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, resp.conn.SetDeadline(time.Now()))
	select {
	case err := <-done:
		require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("SetDeadline did not wake the pending Read")
	}
}

func TestSecureConnWriteDeadline(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	require.NoError(t, ini.conn.SetWriteDeadline(time.Now().Add(-time.Second)))
	_, err := ini.conn.Write([]byte("late"))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	require.NoError(t, ini.conn.SetWriteDeadline(time.Now().Add(time.Minute)))
	_, err = ini.conn.Write([]byte("on time"))
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := resp.conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "on time", string(buf[:n]))
}

func TestSecureConnDeadlinesAfterClose(t *testing.T) {
	ini, resp := pairOverPipe(t, Options{Confirm: AcceptAll}, Options{Confirm: AcceptAll})
	require.NoError(t, ini.err)
	require.NoError(t, resp.err)

	require.NoError(t, ini.conn.Close())
	require.ErrorIs(t, ini.conn.SetReadDeadline(time.Now()), net.ErrClosed)
	require.ErrorIs(t, ini.conn.SetWriteDeadline(time.Now()), net.ErrClosed)
}
