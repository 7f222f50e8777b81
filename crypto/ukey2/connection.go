package ukey2

import (
	"errors"
	"fmt"
	"io"

	"github.com/floegence/d2dpair/observability"
)

// ConnectionContext encrypts and decrypts records after a completed handshake.
//
// Each direction has its own key and a strictly increasing sequence counter;
// the first record in each direction carries sequence 1. A ConnectionContext
// is not safe for concurrent use: callers that send and receive from
// different goroutines must serialize access.
type ConnectionContext struct {
	role           Role
	protocol       NextProtocol
	send           recordCipher
	recv           recordCipher
	sendSeq        uint32
	recvSeq        uint32
	maxRecordBytes int
	unique         [32]byte
	obs            observability.RecordObserver
	wiped          bool
}

func newConnectionContext(role Role, p NextProtocol, next []byte, maxRecordBytes int, r io.Reader) (*ConnectionContext, error) {
	keys, err := deriveConnectionKeys(next)
	if err != nil {
		return nil, err
	}
	defer func() {
		zero(keys.initiator)
		zero(keys.responder)
	}()
	sendKey, recvKey := keys.initiator, keys.responder
	if role == RoleResponder {
		sendKey, recvKey = recvKey, sendKey
	}
	send, err := newRecordCipher(p, sendKey, r)
	if err != nil {
		return nil, err
	}
	recv, err := newRecordCipher(p, recvKey, r)
	if err != nil {
		send.wipe()
		return nil, err
	}
	return &ConnectionContext{
		role:           role,
		protocol:       p,
		send:           send,
		recv:           recv,
		maxRecordBytes: maxRecordBytes,
		unique:         sessionUnique(keys),
		obs:            observability.NoopRecordObserver,
	}, nil
}

// SetObserver installs a record observer; nil restores the no-op observer.
func (c *ConnectionContext) SetObserver(obs observability.RecordObserver) {
	if obs == nil {
		obs = observability.NoopRecordObserver
	}
	c.obs = obs
}

func (c *ConnectionContext) Role() Role { return c.role }

func (c *ConnectionContext) NextProtocol() NextProtocol { return c.protocol }

// SendSequence returns the sequence number of the last record sealed.
func (c *ConnectionContext) SendSequence() uint32 { return c.sendSeq }

// ReceiveSequence returns the sequence number of the last record accepted.
func (c *ConnectionContext) ReceiveSequence() uint32 { return c.recvSeq }

// SessionUnique returns a value both peers share and that is unique to this
// session, suitable for channel binding.
func (c *ConnectionContext) SessionUnique() ([]byte, error) {
	if c.wiped {
		return nil, c.staleErr("SessionUnique")
	}
	out := make([]byte, len(c.unique))
	copy(out, c.unique[:])
	return out, nil
}

// MaxPlaintextBytes returns the largest plaintext Encrypt accepts.
func (c *ConnectionContext) MaxPlaintextBytes() int {
	if c.wiped {
		return 0
	}
	n := c.send.maxPlaintext(c.maxRecordBytes - recordHeaderLen)
	if n < 0 {
		return 0
	}
	return n
}

// Encrypt seals plaintext into a record bound to associatedData. The same
// associatedData must be passed to Decrypt on the peer.
func (c *ConnectionContext) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	if c.wiped {
		return nil, c.staleErr("Encrypt")
	}
	if c.sendSeq == MaxSequenceNumber {
		c.obs.Record(observability.RecordSeal, observability.RecordResultOverflow, 0)
		return nil, ErrSequenceOverflow
	}
	bodyLen := c.send.bodyLen(len(plaintext))
	if recordHeaderLen+bodyLen > c.maxRecordBytes {
		c.obs.Record(observability.RecordSeal, observability.RecordResultError, 0)
		return nil, ErrRecordTooLarge
	}
	seq := c.sendSeq + 1
	frame := encodeRecordHeader(c.protocol, seq, bodyLen)
	body, err := c.send.seal(frame, plaintext, associatedData)
	if err != nil {
		c.obs.Record(observability.RecordSeal, observability.RecordResultError, 0)
		return nil, fmt.Errorf("ukey2: seal record: %w", err)
	}
	if len(body) != bodyLen {
		c.obs.Record(observability.RecordSeal, observability.RecordResultError, 0)
		return nil, errors.New("ukey2: seal record: unexpected body length")
	}
	c.sendSeq = seq
	c.obs.Record(observability.RecordSeal, observability.RecordResultOK, len(plaintext))
	return append(frame, body...), nil
}

// Decrypt opens a record produced by the peer's Encrypt. Records must arrive
// in order with no gaps; any tampering, replay, reordering or wrong
// associatedData fails with ErrAuthentication and leaves the counter unchanged.
func (c *ConnectionContext) Decrypt(record, associatedData []byte) ([]byte, error) {
	if c.wiped {
		return nil, c.staleErr("Decrypt")
	}
	pt, seq, err := c.open(record, associatedData)
	if err != nil {
		c.obs.Record(observability.RecordOpen, observability.RecordResultAuthFailed, 0)
		return nil, err
	}
	c.recvSeq = seq
	c.obs.Record(observability.RecordOpen, observability.RecordResultOK, len(pt))
	return pt, nil
}

func (c *ConnectionContext) open(record, ad []byte) ([]byte, uint32, error) {
	if len(record) > c.maxRecordBytes {
		return nil, 0, ErrAuthentication
	}
	h, ok := decodeRecordHeader(record)
	if !ok || h.protocol != c.protocol {
		return nil, 0, ErrAuthentication
	}
	pt, err := c.recv.open(record[:recordHeaderLen], record[recordHeaderLen:], ad)
	if err != nil {
		return nil, 0, ErrAuthentication
	}
	if uint64(h.seq) != uint64(c.recvSeq)+1 {
		zero(pt)
		return nil, 0, ErrAuthentication
	}
	return pt, h.seq, nil
}

// Wipe zeroes the record keys. Every later call fails with an *InvalidStateError.
func (c *ConnectionContext) Wipe() {
	if c.wiped {
		return
	}
	c.send.wipe()
	c.recv.wipe()
	c.unique = [32]byte{}
	c.wiped = true
}

func (c *ConnectionContext) staleErr(op string) error {
	return &InvalidStateError{Op: op, State: StateCompleted, Consumed: true}
}
