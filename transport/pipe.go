package transport

import (
	"context"
	"sync"
)

type pipeEnd struct {
	in   <-chan []byte
	out  chan<- []byte
	done chan struct{} // Closed when either end closes.
	once *sync.Once
}

// Pipe returns two connected in-memory transports. Frames are copied, so
// callers may reuse their buffers after WriteBinary returns.
func Pipe() (BinaryTransport, BinaryTransport) {
	ab := make(chan []byte, 16)
	ba := make(chan []byte, 16)
	done := make(chan struct{})
	once := &sync.Once{}
	return &pipeEnd{in: ba, out: ab, done: done, once: once},
		&pipeEnd{in: ab, out: ba, done: done, once: once}
}

func (p *pipeEnd) ReadBinary(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.in:
		return b, nil
	default:
	}
	select {
	case b := <-p.in:
		return b, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) WriteBinary(ctx context.Context, b []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	frame := append([]byte(nil), b...)
	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts down both ends. Frames already queued remain readable.
func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
