package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

type HandshakeRole string

const (
	HandshakeRoleInitiator HandshakeRole = "initiator"
	HandshakeRoleResponder HandshakeRole = "responder"
)

type HandshakeResult string

const (
	HandshakeResultOK   HandshakeResult = "ok"
	HandshakeResultFail HandshakeResult = "fail"
)

// HandshakeReason is a low-cardinality label: "ok", an alert name such as
// "bad_next_protocol", "peer_alert", "rejected", "internal_error", or one of
// the transport outcomes "transport_error", "timeout" and "canceled".
type HandshakeReason string

const (
	HandshakeReasonOK        HandshakeReason = "ok"
	HandshakeReasonPeerAlert HandshakeReason = "peer_alert"
	HandshakeReasonRejected  HandshakeReason = "rejected"
	HandshakeReasonInternal  HandshakeReason = "internal_error"
	HandshakeReasonTransport HandshakeReason = "transport_error"
	HandshakeReasonTimeout   HandshakeReason = "timeout"
	HandshakeReasonCanceled  HandshakeReason = "canceled"
)

type RecordDirection string

const (
	RecordSeal RecordDirection = "seal"
	RecordOpen RecordDirection = "open"
)

type RecordResult string

const (
	RecordResultOK         RecordResult = "ok"
	RecordResultAuthFailed RecordResult = "auth_failed"
	RecordResultOverflow   RecordResult = "overflow"
	RecordResultError      RecordResult = "error"
)

// HandshakeObserver receives handshake-level metric events.
type HandshakeObserver interface {
	Handshake(role HandshakeRole, result HandshakeResult, reason HandshakeReason)
	HandshakeLatency(role HandshakeRole, d time.Duration)
}

// RecordObserver receives record-layer metric events.
type RecordObserver interface {
	Record(direction RecordDirection, result RecordResult, bytes int)
}

type noopHandshakeObserver struct{}

func (noopHandshakeObserver) Handshake(HandshakeRole, HandshakeResult, HandshakeReason) {}
func (noopHandshakeObserver) HandshakeLatency(HandshakeRole, time.Duration)            {}

type noopRecordObserver struct{}

func (noopRecordObserver) Record(RecordDirection, RecordResult, int) {}

// NoopHandshakeObserver is a zero-cost observer used when metrics are disabled.
var NoopHandshakeObserver HandshakeObserver = noopHandshakeObserver{}

// NoopRecordObserver is a zero-cost observer used when metrics are disabled.
var NoopRecordObserver RecordObserver = noopRecordObserver{}

// AtomicHandshakeObserver swaps its delegate at runtime.
type AtomicHandshakeObserver struct {
	once sync.Once
	v    atomic.Value
}

type handshakeObserverHolder struct {
	obs HandshakeObserver
}

// NewAtomicHandshakeObserver returns an initialized atomic observer.
func NewAtomicHandshakeObserver() *AtomicHandshakeObserver {
	a := &AtomicHandshakeObserver{}
	a.init()
	return a
}

func (a *AtomicHandshakeObserver) init() {
	a.once.Do(func() { a.v.Store(&handshakeObserverHolder{obs: NoopHandshakeObserver}) })
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicHandshakeObserver) Set(obs HandshakeObserver) {
	if obs == nil {
		obs = NoopHandshakeObserver
	}
	a.init()
	a.v.Store(&handshakeObserverHolder{obs: obs})
}

func (a *AtomicHandshakeObserver) load() HandshakeObserver {
	a.init()
	return a.v.Load().(*handshakeObserverHolder).obs
}

func (a *AtomicHandshakeObserver) Handshake(role HandshakeRole, result HandshakeResult, reason HandshakeReason) {
	a.load().Handshake(role, result, reason)
}

func (a *AtomicHandshakeObserver) HandshakeLatency(role HandshakeRole, d time.Duration) {
	a.load().HandshakeLatency(role, d)
}

// AtomicRecordObserver swaps its delegate at runtime.
type AtomicRecordObserver struct {
	once sync.Once
	v    atomic.Value
}

type recordObserverHolder struct {
	obs RecordObserver
}

// NewAtomicRecordObserver returns an initialized atomic observer.
func NewAtomicRecordObserver() *AtomicRecordObserver {
	a := &AtomicRecordObserver{}
	a.init()
	return a
}

func (a *AtomicRecordObserver) init() {
	a.once.Do(func() { a.v.Store(&recordObserverHolder{obs: NoopRecordObserver}) })
}

// Set replaces the delegate, falling back to the no-op observer on nil.
func (a *AtomicRecordObserver) Set(obs RecordObserver) {
	if obs == nil {
		obs = NoopRecordObserver
	}
	a.init()
	a.v.Store(&recordObserverHolder{obs: obs})
}

func (a *AtomicRecordObserver) load() RecordObserver {
	a.init()
	return a.v.Load().(*recordObserverHolder).obs
}

func (a *AtomicRecordObserver) Record(direction RecordDirection, result RecordResult, bytes int) {
	a.load().Record(direction, result, bytes)
}
