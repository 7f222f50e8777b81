package pairerrors

import (
	"context"
	"errors"

	"github.com/floegence/d2dpair/crypto/ukey2"
)

// ClassifyConnectCode maps a dial or upgrade error to a stable Code.
func ClassifyConnectCode(err error) Code {
	return classifyContextCode(err, CodeDialFailed)
}

// ClassifyTransportCode maps a transport read or write error to a stable Code.
func ClassifyTransportCode(err error) Code {
	return classifyContextCode(err, CodeTransportFailed)
}

// ClassifyHandshakeCode maps a UKEY2 handshake error to a stable Code.
func ClassifyHandshakeCode(err error) Code {
	var pa *ukey2.PeerAlertError
	var ae *ukey2.AlertError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, ukey2.ErrConfig):
		return CodeInvalidOption
	case errors.Is(err, ukey2.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ukey2.ErrCommitmentMismatch):
		return CodeCommitment
	case errors.As(err, &pa):
		return CodePeerAlert
	case errors.As(err, &ae):
		return alertCode(ae.Type)
	default:
		return CodeHandshakeFailed
	}
}

// ClassifyRecordCode maps a record-layer error to a stable Code.
func ClassifyRecordCode(err error) Code {
	switch {
	case errors.Is(err, ukey2.ErrAuthentication):
		return CodeAuthFailed
	case errors.Is(err, ukey2.ErrSequenceOverflow):
		return CodeSequenceOverflow
	case errors.Is(err, ukey2.ErrRecordTooLarge):
		return CodeRecordTooLarge
	case errors.Is(err, ukey2.ErrInvalidState):
		return CodeInvalidState
	default:
		return ClassifyTransportCode(err)
	}
}

func alertCode(t ukey2.AlertType) Code {
	switch t {
	case ukey2.AlertBadMessage, ukey2.AlertBadMessageType, ukey2.AlertIncorrectMessage, ukey2.AlertBadMessageData:
		return CodeBadMessage
	case ukey2.AlertBadVersion:
		return CodeBadVersion
	case ukey2.AlertBadRandom:
		return CodeBadRandom
	case ukey2.AlertBadHandshakeCipher:
		return CodeBadCipher
	case ukey2.AlertBadNextProtocol:
		return CodeNoCommonProtocol
	case ukey2.AlertBadPublicKey:
		return CodeBadPublicKey
	default:
		return CodeHandshakeFailed
	}
}

func classifyContextCode(err error, fallback Code) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return fallback
	}
}
