package pairerrors

import "fmt"

// Stage identifies which step of a pairing failed.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageConnect   Stage = "connect"
	StageHandshake Stage = "handshake"
	StageConfirm   Stage = "confirm"
	StageSecure    Stage = "secure"
	StageYamux     Stage = "yamux"
	StageClose     Stage = "close"
)

// Code is a stable, programmatic error identifier.
type Code string

const (
	CodeTimeout          Code = "timeout"
	CodeCanceled         Code = "canceled"
	CodeInvalidOption    Code = "invalid_option"
	CodeInvalidState     Code = "invalid_state"
	CodeDialFailed       Code = "dial_failed"
	CodeUpgradeFailed    Code = "upgrade_failed"
	CodeTransportFailed  Code = "transport_failed"
	CodeHandshakeFailed  Code = "handshake_failed"
	CodeBadMessage       Code = "bad_message"
	CodeBadVersion       Code = "bad_version"
	CodeBadRandom        Code = "bad_random"
	CodeBadCipher        Code = "bad_handshake_cipher"
	CodeNoCommonProtocol Code = "no_common_protocol"
	CodeBadPublicKey     Code = "bad_public_key"
	CodeCommitment       Code = "commitment_mismatch"
	CodePeerAlert        Code = "peer_alert"
	CodeRejected         Code = "rejected"
	CodeAuthFailed       Code = "auth_failed"
	CodeSequenceOverflow Code = "sequence_overflow"
	CodeRecordTooLarge   Code = "record_too_large"
	CodeMuxFailed        Code = "mux_failed"
)

// Error is a structured error for user-facing pairing operations.
type Error struct {
	Stage Stage
	Code  Code
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Stage, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func Wrap(stage Stage, code Code, err error) error {
	return &Error{Stage: stage, Code: code, Err: err}
}
