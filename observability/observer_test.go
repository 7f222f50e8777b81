package observability

import (
	"testing"
	"time"
)

type countingObserver struct {
	handshakes int
	latencies  int
	records    int
	lastBytes  int
}

func (c *countingObserver) Handshake(HandshakeRole, HandshakeResult, HandshakeReason) { c.handshakes++ }
func (c *countingObserver) HandshakeLatency(HandshakeRole, time.Duration)            { c.latencies++ }
func (c *countingObserver) Record(_ RecordDirection, _ RecordResult, n int) {
	c.records++
	c.lastBytes = n
}

func TestAtomicHandshakeObserverSwap(t *testing.T) {
	var a AtomicHandshakeObserver
	// Zero value delegates to the no-op observer.
	a.Handshake(HandshakeRoleInitiator, HandshakeResultOK, HandshakeReasonOK)

	c := &countingObserver{}
	a.Set(c)
	a.Handshake(HandshakeRoleInitiator, HandshakeResultOK, HandshakeReasonOK)
	a.HandshakeLatency(HandshakeRoleInitiator, time.Millisecond)
	if c.handshakes != 1 || c.latencies != 1 {
		t.Fatalf("unexpected counts: %+v", c)
	}

	a.Set(nil)
	a.Handshake(HandshakeRoleResponder, HandshakeResultFail, HandshakeReasonRejected)
	if c.handshakes != 1 {
		t.Fatalf("observer still receiving events after reset")
	}
}

func TestAtomicRecordObserverSwap(t *testing.T) {
	a := NewAtomicRecordObserver()
	a.Record(RecordSeal, RecordResultOK, 1)

	c := &countingObserver{}
	a.Set(c)
	a.Record(RecordOpen, RecordResultOK, 42)
	if c.records != 1 || c.lastBytes != 42 {
		t.Fatalf("unexpected counts: %+v", c)
	}
}
