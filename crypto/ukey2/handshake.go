package ukey2

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/floegence/d2dpair/observability"
	"github.com/sirupsen/logrus"
)

// Options tunes a handshake Context. The zero value is usable.
type Options struct {
	// HandshakeCiphers lists key-agreement ciphers in preference order (default: P256SHA512).
	HandshakeCiphers []HandshakeCipher
	// MaxMessageBytes bounds inbound handshake messages (default: DefaultMaxMessageBytes).
	MaxMessageBytes int
	// MaxRecordBytes bounds record frames of the derived ConnectionContext (default: DefaultMaxRecordBytes).
	MaxRecordBytes int
	// Rand is the entropy source for keys, randoms and IVs (default: crypto/rand).
	Rand io.Reader
	// Logger receives state transitions at debug level and alerts at warn level.
	Logger logrus.FieldLogger
	// Observer receives handshake outcomes and latency.
	Observer observability.HandshakeObserver
}

type keyShare struct {
	cipher   HandshakeCipher
	priv     *ecdh.PrivateKey
	finished []byte // Initiator only: the ClientFinished message committed to in ClientInit.
}

// Context drives one side of a UKEY2 handshake.
//
// A Context is not safe for concurrent use. It is consumed by
// ToConnectionContext; every later call fails with an *InvalidStateError.
type Context struct {
	role            Role
	protocols       []NextProtocol
	ciphers         []HandshakeCipher
	maxMessageBytes int
	maxRecordBytes  int
	rand            io.Reader
	log             logrus.FieldLogger
	obs             observability.HandshakeObserver

	state     State
	consumed  bool
	startedAt time.Time

	shares             []keyShare // Initiator: one share per offered cipher until ServerInit arrives.
	local              *keyShare  // Share of the negotiated cipher.
	cipher             HandshakeCipher
	negotiated         NextProtocol
	peerCommitment     []byte // Responder: commitment for the negotiated cipher.
	peerProtocolsField []byte // Responder: canonical re-encoding of the received next_protocols.

	m1, m2, m3 []byte
	dhs        []byte
	transcript [32]byte
}

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// New creates a handshake context for role with the given next-protocol preference list.
func New(role Role, nextProtocols []NextProtocol) (*Context, error) {
	return NewWithOptions(role, nextProtocols, Options{})
}

// NewWithOptions is New with explicit options.
func NewWithOptions(role Role, nextProtocols []NextProtocol, opts Options) (*Context, error) {
	if !role.valid() {
		return nil, &ConfigError{Field: "role", Reason: fmt.Sprintf("unknown role %d", role)}
	}
	if len(nextProtocols) == 0 {
		return nil, &ConfigError{Field: "next_protocols", Reason: "at least one protocol is required"}
	}
	protocols := make([]NextProtocol, 0, len(nextProtocols))
	for _, p := range nextProtocols {
		if !p.valid() {
			return nil, &ConfigError{Field: "next_protocols", Reason: fmt.Sprintf("unknown protocol %d", p)}
		}
		if !containsProtocol(protocols, p) {
			protocols = append(protocols, p)
		}
	}

	ciphers := make([]HandshakeCipher, 0, len(opts.HandshakeCiphers))
	for _, hc := range opts.HandshakeCiphers {
		if _, ok := hc.curve(); !ok {
			return nil, &ConfigError{Field: "handshake_ciphers", Reason: fmt.Sprintf("unknown cipher %d", hc)}
		}
		if !containsCipher(ciphers, hc) {
			ciphers = append(ciphers, hc)
		}
	}
	if len(ciphers) == 0 {
		ciphers = append(ciphers, P256SHA512)
	}

	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if opts.MaxRecordBytes <= 0 {
		opts.MaxRecordBytes = DefaultMaxRecordBytes
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	var logger logrus.FieldLogger = discardLogger
	if opts.Logger != nil {
		logger = opts.Logger
	}
	if opts.Observer == nil {
		opts.Observer = observability.NoopHandshakeObserver
	}

	return &Context{
		role:            role,
		protocols:       protocols,
		ciphers:         ciphers,
		maxMessageBytes: opts.MaxMessageBytes,
		maxRecordBytes:  opts.MaxRecordBytes,
		rand:            opts.Rand,
		log:             logger.WithFields(logrus.Fields{"component": "ukey2", "role": role.String()}),
		obs:             opts.Observer,
		state:           StateNotStarted,
	}, nil
}

// Role returns the role fixed at construction.
func (c *Context) Role() Role { return c.role }

// State returns the current handshake state.
func (c *Context) State() State { return c.state }

// IsHandshakeComplete reports whether the handshake reached StateCompleted and
// has not been consumed yet.
func (c *Context) IsHandshakeComplete() bool {
	return !c.consumed && c.state == StateCompleted
}

// NegotiatedProtocol returns the next protocol agreed with the peer. It is
// known to the responder after ClientInit and to the initiator after ServerInit.
func (c *Context) NegotiatedProtocol() (NextProtocol, error) {
	if err := c.checkUsable("NegotiatedProtocol"); err != nil {
		return 0, err
	}
	if c.negotiated == 0 {
		return 0, c.stateErr("NegotiatedProtocol")
	}
	return c.negotiated, nil
}

// HandshakeCipher returns the negotiated key-agreement cipher.
func (c *Context) HandshakeCipher() (HandshakeCipher, error) {
	if err := c.checkUsable("HandshakeCipher"); err != nil {
		return 0, err
	}
	if c.cipher == 0 {
		return 0, c.stateErr("HandshakeCipher")
	}
	return c.cipher, nil
}

// GetNextHandshakeMessage returns the next message to send to the peer.
//
// The initiator sends ClientInit first and ClientFinished after ServerInit;
// the responder sends ServerInit after ClientInit. Any other call fails with
// an *InvalidStateError and leaves the state unchanged.
func (c *Context) GetNextHandshakeMessage() ([]byte, error) {
	const op = "GetNextHandshakeMessage"
	if err := c.checkUsable(op); err != nil {
		return nil, err
	}
	switch {
	case c.role == RoleInitiator && c.state == StateNotStarted:
		return c.makeClientInit()
	case c.role == RoleResponder && c.state == StateMessageReceived:
		return c.makeServerInit()
	case c.role == RoleInitiator && c.state == StateMessageReceived:
		return c.makeClientFinished()
	default:
		return nil, c.stateErr(op)
	}
}

// ParseHandshakeMessage consumes the next message from the peer.
//
// Any protocol violation returns an *AlertError whose Alert should be sent to
// the peer; the context is then Failed.
func (c *Context) ParseHandshakeMessage(msg []byte) error {
	if err := c.checkUsable("ParseHandshakeMessage"); err != nil {
		return err
	}
	c.markStart()
	if len(msg) > c.maxMessageBytes {
		return c.fail(AlertBadMessage, fmt.Errorf("message of %d bytes exceeds limit %d", len(msg), c.maxMessageBytes))
	}
	env, err := decodeEnvelope(msg)
	if err != nil {
		return c.fail(AlertBadMessage, err)
	}
	if env.Type == MessageTypeAlert {
		return c.peerAlert(env.Data)
	}

	expected := c.expectedInbound()
	if expected == MessageTypeUnknown {
		return c.fail(AlertIncorrectMessage, fmt.Errorf("unexpected %s in state %s", env.Type, c.state))
	}
	if env.Type != expected {
		switch env.Type {
		case MessageTypeClientInit, MessageTypeServerInit, MessageTypeClientFinish:
			return c.fail(AlertIncorrectMessage, fmt.Errorf("expected %s, got %s", expected, env.Type))
		default:
			return c.fail(AlertBadMessageType, fmt.Errorf("unknown message type %d", uint32(env.Type)))
		}
	}

	switch env.Type {
	case MessageTypeClientInit:
		return c.handleClientInit(msg, env.Data)
	case MessageTypeServerInit:
		return c.handleServerInit(msg, env.Data)
	default:
		return c.handleClientFinished(msg, env.Data)
	}
}

// GetVerificationString derives length bytes for out-of-band comparison.
// Both sides of the same handshake derive identical bytes.
func (c *Context) GetVerificationString(length int) ([]byte, error) {
	const op = "GetVerificationString"
	if err := c.checkUsable(op); err != nil {
		return nil, err
	}
	if c.state != StateVerificationReady && c.state != StateCompleted {
		return nil, c.stateErr(op)
	}
	if length < 1 || length > MaxVerificationStringLength {
		return nil, &ConfigError{Field: "length", Reason: fmt.Sprintf("must be in [1, %d], got %d", MaxVerificationStringLength, length)}
	}
	return deriveAuthString(c.dhs, c.transcript, length)
}

// VerifyHandshake records that the verification string was confirmed out of
// band and moves the context to StateCompleted.
func (c *Context) VerifyHandshake() error {
	const op = "VerifyHandshake"
	if err := c.checkUsable(op); err != nil {
		return err
	}
	if c.state != StateVerificationReady {
		return c.stateErr(op)
	}
	c.transition(StateCompleted)
	c.obs.Handshake(c.roleLabel(), observability.HandshakeResultOK, observability.HandshakeReasonOK)
	return nil
}

// ToConnectionContext consumes the completed handshake and returns the
// record-layer context for the negotiated protocol.
func (c *Context) ToConnectionContext() (*ConnectionContext, error) {
	const op = "ToConnectionContext"
	if err := c.checkUsable(op); err != nil {
		return nil, err
	}
	if c.state != StateCompleted {
		return nil, c.stateErr(op)
	}
	next, err := deriveNextSecret(c.dhs, c.transcript)
	if err != nil {
		return nil, err
	}
	defer zero(next)
	cc, err := newConnectionContext(c.role, c.negotiated, next, c.maxRecordBytes, c.rand)
	if err != nil {
		return nil, err
	}
	c.wipe()
	c.m1, c.m2, c.m3 = nil, nil, nil
	c.transcript = [32]byte{}
	c.consumed = true
	c.log.Debug("handshake consumed into connection context")
	return cc, nil
}

func (c *Context) makeClientInit() ([]byte, error) {
	c.markStart()
	names := make([]string, len(c.protocols))
	for i, p := range c.protocols {
		names[i] = p.String()
	}
	protocolsField := encodeNextProtocols(names)

	random, err := c.random()
	if err != nil {
		return nil, c.internalFailure(err)
	}
	hello := clientInit{Version: Version, Random: random, NextProtocols: names}
	for _, hc := range c.ciphers {
		priv, err := generateKey(hc, c.rand)
		if err != nil {
			return nil, c.internalFailure(err)
		}
		finished := encodeEnvelope(MessageTypeClientFinish, clientFinished{PublicKey: priv.PublicKey().Bytes()}.marshal())
		c.shares = append(c.shares, keyShare{cipher: hc, priv: priv, finished: finished})
		hello.Commitments = append(hello.Commitments, cipherCommitment{
			Cipher:     hc,
			Commitment: computeCommitment(finished, protocolsField),
		})
	}
	c.m1 = encodeEnvelope(MessageTypeClientInit, hello.marshal())
	c.transition(StateMessageSent)
	return clone(c.m1), nil
}

func (c *Context) makeServerInit() ([]byte, error) {
	priv, err := generateKey(c.cipher, c.rand)
	if err != nil {
		return nil, c.internalFailure(err)
	}
	random, err := c.random()
	if err != nil {
		return nil, c.internalFailure(err)
	}
	c.local = &keyShare{cipher: c.cipher, priv: priv}
	c.m2 = encodeEnvelope(MessageTypeServerInit, serverInit{
		Version:      Version,
		Random:       random,
		Cipher:       c.cipher,
		PublicKey:    priv.PublicKey().Bytes(),
		NextProtocol: c.negotiated.String(),
	}.marshal())
	c.transition(StateMessageSent)
	return clone(c.m2), nil
}

func (c *Context) makeClientFinished() ([]byte, error) {
	c.m3 = c.local.finished
	c.transcript = transcriptHash(c.m1, c.m2, c.m3)
	c.local = nil
	c.transition(StateVerificationReady)
	c.obs.HandshakeLatency(c.roleLabel(), time.Since(c.startedAt))
	return clone(c.m3), nil
}

func (c *Context) handleClientInit(raw, data []byte) error {
	m, err := unmarshalClientInit(data)
	if err != nil {
		return c.fail(AlertBadMessageData, err)
	}
	if m.Version != Version {
		return c.fail(AlertBadVersion, fmt.Errorf("unsupported version %d", m.Version))
	}
	if len(m.Random) != RandomSize {
		return c.fail(AlertBadRandom, fmt.Errorf("random has %d bytes", len(m.Random)))
	}

	var chosen *cipherCommitment
	for i := range m.Commitments {
		if containsCipher(c.ciphers, m.Commitments[i].Cipher) {
			chosen = &m.Commitments[i]
			break
		}
	}
	if chosen == nil {
		return c.fail(AlertBadHandshakeCipher, errors.New("no supported handshake cipher offered"))
	}
	if len(chosen.Commitment) != CommitmentSize {
		return c.fail(AlertBadHandshakeCipher, fmt.Errorf("commitment has %d bytes", len(chosen.Commitment)))
	}

	proto, ok := c.selectProtocol(m.NextProtocols)
	if !ok {
		return c.fail(AlertBadNextProtocol, fmt.Errorf("no common next protocol in %v", m.NextProtocols))
	}

	c.cipher = chosen.Cipher
	c.peerCommitment = chosen.Commitment
	c.peerProtocolsField = encodeNextProtocols(m.NextProtocols)
	c.negotiated = proto
	c.m1 = clone(raw)
	c.transition(StateMessageReceived)
	c.log.WithFields(logrus.Fields{"cipher": c.cipher.String(), "next_protocol": proto.String()}).Debug("negotiated client init")
	return nil
}

func (c *Context) handleServerInit(raw, data []byte) error {
	m, err := unmarshalServerInit(data)
	if err != nil {
		return c.fail(AlertBadMessageData, err)
	}
	if m.Version != Version {
		return c.fail(AlertBadVersion, fmt.Errorf("unsupported version %d", m.Version))
	}
	if len(m.Random) != RandomSize {
		return c.fail(AlertBadRandom, fmt.Errorf("random has %d bytes", len(m.Random)))
	}
	var share *keyShare
	for i := range c.shares {
		if c.shares[i].cipher == m.Cipher {
			share = &c.shares[i]
			break
		}
	}
	if share == nil {
		return c.fail(AlertBadHandshakeCipher, fmt.Errorf("server chose uncommitted cipher %s", m.Cipher))
	}
	proto, ok := ParseNextProtocol(m.NextProtocol)
	if !ok || !containsProtocol(c.protocols, proto) {
		return c.fail(AlertBadNextProtocol, fmt.Errorf("server chose unadvertised protocol %q", m.NextProtocol))
	}
	peer, err := parsePublicKey(m.Cipher, m.PublicKey)
	if err != nil {
		return c.fail(AlertBadPublicKey, err)
	}
	dhs, err := deriveDHS(share.priv, peer)
	if err != nil {
		return c.fail(AlertBadPublicKey, err)
	}

	c.cipher = m.Cipher
	c.negotiated = proto
	c.dhs = dhs
	c.local = &keyShare{cipher: share.cipher, finished: share.finished}
	c.dropShares()
	c.m2 = clone(raw)
	c.transition(StateMessageReceived)
	c.log.WithFields(logrus.Fields{"cipher": c.cipher.String(), "next_protocol": proto.String()}).Debug("accepted server init")
	return nil
}

func (c *Context) handleClientFinished(raw, data []byte) error {
	expected := computeCommitment(raw, c.peerProtocolsField)
	if subtle.ConstantTimeCompare(expected, c.peerCommitment) != 1 {
		return c.fail(AlertBadMessageData, ErrCommitmentMismatch)
	}
	m, err := unmarshalClientFinished(data)
	if err != nil {
		return c.fail(AlertBadMessageData, err)
	}
	peer, err := parsePublicKey(c.cipher, m.PublicKey)
	if err != nil {
		return c.fail(AlertBadPublicKey, err)
	}
	dhs, err := deriveDHS(c.local.priv, peer)
	if err != nil {
		return c.fail(AlertBadPublicKey, err)
	}
	c.dhs = dhs
	c.m3 = clone(raw)
	c.transcript = transcriptHash(c.m1, c.m2, c.m3)
	c.local = nil
	c.transition(StateVerificationReady)
	c.obs.HandshakeLatency(c.roleLabel(), time.Since(c.startedAt))
	return nil
}

func (c *Context) peerAlert(data []byte) error {
	a, err := unmarshalAlert(data)
	if err != nil {
		return c.fail(AlertBadMessageData, err)
	}
	c.abort(observability.HandshakeReasonPeerAlert)
	c.log.WithField("alert", a.Type.String()).Warn("peer aborted handshake")
	return &AlertError{Type: a.Type, Err: &PeerAlertError{Type: a.Type, Message: a.Message}}
}

func (c *Context) expectedInbound() MessageType {
	switch {
	case c.role == RoleResponder && c.state == StateNotStarted:
		return MessageTypeClientInit
	case c.role == RoleInitiator && c.state == StateMessageSent:
		return MessageTypeServerInit
	case c.role == RoleResponder && c.state == StateMessageSent:
		return MessageTypeClientFinish
	default:
		return MessageTypeUnknown
	}
}

// selectProtocol picks the peer's most preferred protocol that is also supported locally.
func (c *Context) selectProtocol(peer []string) (NextProtocol, bool) {
	for _, name := range peer {
		if p, ok := ParseNextProtocol(name); ok && containsProtocol(c.protocols, p) {
			return p, true
		}
	}
	return 0, false
}

func (c *Context) fail(t AlertType, cause error) error {
	c.abort(observability.HandshakeReason(strings.ToLower(t.String())))
	c.log.WithFields(logrus.Fields{"alert": t.String(), "error": cause}).Warn("handshake failed")
	return &AlertError{Type: t, Alert: EncodeAlert(t, cause.Error()), Err: cause}
}

func (c *Context) internalFailure(err error) error {
	c.abort(observability.HandshakeReasonInternal)
	c.log.WithError(err).Warn("handshake failed")
	return fmt.Errorf("ukey2: %w", err)
}

func (c *Context) abort(reason observability.HandshakeReason) {
	c.state = StateFailed
	c.wipe()
	c.obs.Handshake(c.roleLabel(), observability.HandshakeResultFail, reason)
}

// wipe drops ephemeral private keys and zeroes the DH secret.
func (c *Context) wipe() {
	c.dropShares()
	c.local = nil
	zero(c.dhs)
	c.dhs = nil
}

func (c *Context) dropShares() {
	for i := range c.shares {
		c.shares[i].priv = nil
	}
	c.shares = nil
}

func (c *Context) checkUsable(op string) error {
	if c.consumed {
		return &InvalidStateError{Op: op, State: c.state, Consumed: true}
	}
	if c.state == StateFailed {
		return &InvalidStateError{Op: op, State: c.state}
	}
	return nil
}

func (c *Context) stateErr(op string) error {
	return &InvalidStateError{Op: op, State: c.state}
}

func (c *Context) transition(s State) {
	c.log.WithFields(logrus.Fields{"from": c.state.String(), "to": s.String()}).Debug("handshake state")
	c.state = s
}

func (c *Context) markStart() {
	if c.startedAt.IsZero() {
		c.startedAt = time.Now()
	}
}

func (c *Context) random() ([]byte, error) {
	b := make([]byte, RandomSize)
	if _, err := io.ReadFull(c.rand, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Context) roleLabel() observability.HandshakeRole {
	if c.role == RoleInitiator {
		return observability.HandshakeRoleInitiator
	}
	return observability.HandshakeRoleResponder
}

func containsProtocol(list []NextProtocol, p NextProtocol) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsCipher(list []HandshakeCipher, hc HandshakeCipher) bool {
	for _, v := range list {
		if v == hc {
			return true
		}
	}
	return false
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
