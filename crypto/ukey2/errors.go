package ukey2

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("ukey2: invalid configuration")
	// ErrInvalidState matches every *InvalidStateError.
	ErrInvalidState = errors.New("ukey2: invalid state")
	// ErrAlert matches every *AlertError.
	ErrAlert = errors.New("ukey2: handshake alert")
	// ErrAuthentication signals a record that failed AEAD or sequence verification.
	ErrAuthentication = errors.New("ukey2: record authentication failed")
	// ErrSequenceOverflow signals an exhausted send sequence; a new handshake is required.
	ErrSequenceOverflow = errors.New("ukey2: sequence number overflow")
	// ErrRecordTooLarge signals a plaintext whose record would exceed the frame limit.
	ErrRecordTooLarge = errors.New("ukey2: record too large")
	// ErrCommitmentMismatch is the cause of the alert raised when a revealed
	// ClientFinished does not match the commitment sent in ClientInit.
	ErrCommitmentMismatch = errors.New("commitment mismatch")

	errUnsupportedCipher  = errors.New("unsupported handshake cipher")
	errBadPublicKeyLength = errors.New("invalid public key length")
	errMalformed          = errors.New("malformed message")
)

// ConfigError reports an invalid construction parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ukey2: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// InvalidStateError reports an operation the current state does not permit.
// It is always a programming error at the call site.
type InvalidStateError struct {
	Op    string
	State State
	// Consumed is set when the handle was already turned into a ConnectionContext.
	Consumed bool
}

func (e *InvalidStateError) Error() string {
	if e.Consumed {
		return fmt.Sprintf("ukey2: %s: stale handle", e.Op)
	}
	return fmt.Sprintf("ukey2: %s not allowed in state %s", e.Op, e.State)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// AlertError reports a fatal handshake protocol violation.
//
// Alert holds an encoded alert message for the peer. It is nil when the
// failure was itself caused by an alert received from the peer.
type AlertError struct {
	Type  AlertType
	Alert []byte
	Err   error
}

func (e *AlertError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ukey2: alert %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("ukey2: alert %s", e.Type)
}

func (e *AlertError) Unwrap() error { return e.Err }

func (e *AlertError) Is(target error) bool { return target == ErrAlert }

// PeerAlertError is the cause of an AlertError produced by an alert the peer sent.
type PeerAlertError struct {
	Type    AlertType
	Message string
}

func (e *PeerAlertError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("peer sent alert %s", e.Type)
	}
	return fmt.Sprintf("peer sent alert %s: %s", e.Type, e.Message)
}
