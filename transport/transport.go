// Package transport carries handshake messages and records as discrete
// binary frames.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrTextFrame is returned when a websocket peer sends a text message.
	ErrTextFrame = errors.New("unexpected websocket text message")
)

// BinaryTransport is a message-oriented, ordered, reliable channel.
// One WriteBinary on one side is delivered as exactly one ReadBinary on the other.
type BinaryTransport interface {
	// ReadBinary blocks until the next frame arrives or ctx is done.
	ReadBinary(ctx context.Context) ([]byte, error)
	// WriteBinary sends one frame, honoring ctx deadline and cancellation.
	WriteBinary(ctx context.Context, b []byte) error
	Close() error
}
