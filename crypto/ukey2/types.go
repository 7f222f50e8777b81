package ukey2

import (
	"crypto/ecdh"
	"crypto/rand"
	"io"
)

// Role fixes which side sends the first handshake message.
type Role uint8

const (
	RoleInitiator Role = 1
	RoleResponder Role = 2
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

func (r Role) valid() bool { return r == RoleInitiator || r == RoleResponder }

// NextProtocol identifies a post-handshake record-layer suite.
type NextProtocol uint8

const (
	// AES256GCMSIV seals records with AES-256-GCM-SIV.
	AES256GCMSIV NextProtocol = 1
	// AES256CBCHMACSHA256 seals records with AES-256-CBC and an HMAC-SHA256 tag.
	AES256CBCHMACSHA256 NextProtocol = 2
)

// String returns the wire name advertised during negotiation.
func (p NextProtocol) String() string {
	switch p {
	case AES256GCMSIV:
		return "AES_256_GCM_SIV"
	case AES256CBCHMACSHA256:
		return "AES_256_CBC_HMAC_SHA256"
	default:
		return "UNKNOWN"
	}
}

func (p NextProtocol) valid() bool { return p == AES256GCMSIV || p == AES256CBCHMACSHA256 }

// ParseNextProtocol maps a wire name back to a NextProtocol.
func ParseNextProtocol(name string) (NextProtocol, bool) {
	switch name {
	case "AES_256_GCM_SIV":
		return AES256GCMSIV, true
	case "AES_256_CBC_HMAC_SHA256":
		return AES256CBCHMACSHA256, true
	default:
		return 0, false
	}
}

// HandshakeCipher identifies the curve and commitment hash of the key agreement.
type HandshakeCipher uint32

const (
	P256SHA512       HandshakeCipher = 100
	Curve25519SHA512 HandshakeCipher = 200
)

func (c HandshakeCipher) String() string {
	switch c {
	case P256SHA512:
		return "P256_SHA512"
	case Curve25519SHA512:
		return "CURVE25519_SHA512"
	default:
		return "RESERVED"
	}
}

func (c HandshakeCipher) curve() (ecdh.Curve, bool) {
	switch c {
	case P256SHA512:
		return ecdh.P256(), true
	case Curve25519SHA512:
		return ecdh.X25519(), true
	default:
		return nil, false
	}
}

func (c HandshakeCipher) publicKeySize() int {
	switch c {
	case P256SHA512:
		return 65
	case Curve25519SHA512:
		return 32
	default:
		return 0
	}
}

func generateKey(c HandshakeCipher, r io.Reader) (*ecdh.PrivateKey, error) {
	curve, ok := c.curve()
	if !ok {
		return nil, errUnsupportedCipher
	}
	if r == nil {
		r = rand.Reader
	}
	return curve.GenerateKey(r)
}

func parsePublicKey(c HandshakeCipher, b []byte) (*ecdh.PublicKey, error) {
	curve, ok := c.curve()
	if !ok {
		return nil, errUnsupportedCipher
	}
	if len(b) != c.publicKeySize() {
		return nil, errBadPublicKeyLength
	}
	return curve.NewPublicKey(b)
}

// State is the handshake state machine position.
type State uint8

const (
	StateNotStarted State = iota
	StateMessageSent
	StateMessageReceived
	StateVerificationReady
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateMessageSent:
		return "message_sent"
	case StateMessageReceived:
		return "message_received"
	case StateVerificationReady:
		return "verification_ready"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
