package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipeDeliversFramesInOrder(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	buf := []byte("first")
	require.NoError(t, a.WriteBinary(ctx, buf))
	buf[0] = 'X'
	require.NoError(t, a.WriteBinary(ctx, []byte("second")))

	got, err := b.ReadBinary(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
	got, err = b.ReadBinary(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got)

	require.NoError(t, b.WriteBinary(ctx, []byte("reply")))
	got, err = a.ReadBinary(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("reply"), got)
}

func TestPipeReadHonorsContext(t *testing.T) {
	_, b := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.ReadBinary(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()
	require.NoError(t, a.WriteBinary(ctx, []byte("queued")))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	got, err := b.ReadBinary(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("queued"), got)

	_, err = b.ReadBinary(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.WriteBinary(ctx, []byte("x")), ErrClosed)
}
