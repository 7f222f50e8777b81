package pairing

import (
	"context"
	"io"
	"time"

	"github.com/floegence/d2dpair/crypto/ukey2"
	"github.com/floegence/d2dpair/observability"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHandshakeTimeout bounds the three handshake messages and the confirmation step.
	DefaultHandshakeTimeout = 2 * time.Minute
	// DefaultVerificationLength is the number of verification bytes handed to Confirm.
	DefaultVerificationLength = 32
	// DefaultCodeDigits is the length of the decimal code shown to users.
	DefaultCodeDigits = 6
	// DefaultMaxBufferedBytes caps decrypted data waiting for Read.
	DefaultMaxBufferedBytes = 4 << 20
)

// Confirmer is called once both sides hold the verification string. It
// returns nil only if the user confirmed that both devices show the same code.
type Confirmer func(ctx context.Context, verification []byte) error

// AcceptAll confirms every pairing. Use it only where the channel is already
// authenticated by other means, such as tests.
var AcceptAll Confirmer = func(context.Context, []byte) error { return nil }

// Options configures Initiate and Respond.
type Options struct {
	// NextProtocols is the record protocol preference list (default: GCM-SIV, then CBC+HMAC).
	NextProtocols []ukey2.NextProtocol
	// Handshake is passed to the UKEY2 context. Its Logger defaults to Logger.
	Handshake ukey2.Options
	// Confirm is required.
	Confirm Confirmer
	// HandshakeTimeout bounds the whole pairing exchange (default: DefaultHandshakeTimeout).
	HandshakeTimeout time.Duration
	// VerificationLength is the number of bytes passed to Confirm (default: DefaultVerificationLength).
	VerificationLength int
	// MaxBufferedBytes caps plaintext buffered by SecureConn (default: DefaultMaxBufferedBytes).
	MaxBufferedBytes int
	// RecordObserver receives record-layer events from the SecureConn.
	RecordObserver observability.RecordObserver
	Logger         logrus.FieldLogger
}

func (o Options) withDefaults() (Options, error) {
	if o.Confirm == nil {
		return o, oops.Errorf("pairing: Confirm is required")
	}
	if len(o.NextProtocols) == 0 {
		o.NextProtocols = []ukey2.NextProtocol{ukey2.AES256GCMSIV, ukey2.AES256CBCHMACSHA256}
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.VerificationLength == 0 {
		o.VerificationLength = DefaultVerificationLength
	}
	if o.VerificationLength < 8 || o.VerificationLength > ukey2.MaxVerificationStringLength {
		return o, oops.Errorf("pairing: verification length %d out of range [8, %d]", o.VerificationLength, ukey2.MaxVerificationStringLength)
	}
	if o.MaxBufferedBytes <= 0 {
		o.MaxBufferedBytes = DefaultMaxBufferedBytes
	}
	if o.RecordObserver == nil {
		o.RecordObserver = observability.NoopRecordObserver
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.Handshake.Logger == nil {
		o.Handshake.Logger = o.Logger
	}
	if o.Handshake.Observer == nil {
		o.Handshake.Observer = observability.NoopHandshakeObserver
	}
	return o, nil
}
