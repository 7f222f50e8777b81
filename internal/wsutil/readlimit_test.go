package wsutil

import (
	"testing"

	"github.com/floegence/d2dpair/crypto/ukey2"
)

func TestReadLimit(t *testing.T) {
	if got := ReadLimit(0, 0); got != ukey2.DefaultMaxRecordBytes {
		t.Fatalf("defaults: got %d", got)
	}
	if got := ReadLimit(64<<10, 4096); got != 64<<10 {
		t.Fatalf("handshake larger than record: got %d", got)
	}
	if got := ReadLimit(-1, 2<<20); got != 2<<20 {
		t.Fatalf("record larger than handshake: got %d", got)
	}
}
