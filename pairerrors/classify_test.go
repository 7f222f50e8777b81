package pairerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/floegence/d2dpair/crypto/ukey2"
)

func TestClassifyConnectCode(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		if got := ClassifyConnectCode(context.DeadlineExceeded); got != CodeTimeout {
			t.Fatalf("expected %q, got %q", CodeTimeout, got)
		}
	})
	t.Run("fallback", func(t *testing.T) {
		if got := ClassifyConnectCode(errors.New("x")); got != CodeDialFailed {
			t.Fatalf("expected %q, got %q", CodeDialFailed, got)
		}
	})
}

func TestClassifyHandshakeCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"timeout", context.DeadlineExceeded, CodeTimeout},
		{"canceled", context.Canceled, CodeCanceled},
		{"config", &ukey2.ConfigError{Field: "role", Reason: "x"}, CodeInvalidOption},
		{"state", &ukey2.InvalidStateError{Op: "x"}, CodeInvalidState},
		{"commitment", &ukey2.AlertError{Type: ukey2.AlertBadMessageData, Err: ukey2.ErrCommitmentMismatch}, CodeCommitment},
		{"peer alert", &ukey2.AlertError{Type: ukey2.AlertBadNextProtocol, Err: &ukey2.PeerAlertError{Type: ukey2.AlertBadNextProtocol}}, CodePeerAlert},
		{"no common protocol", &ukey2.AlertError{Type: ukey2.AlertBadNextProtocol}, CodeNoCommonProtocol},
		{"bad public key", &ukey2.AlertError{Type: ukey2.AlertBadPublicKey}, CodeBadPublicKey},
		{"wrapped", fmt.Errorf("wrap: %w", &ukey2.AlertError{Type: ukey2.AlertBadVersion}), CodeBadVersion},
		{"fallback", errors.New("x"), CodeHandshakeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHandshakeCode(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifyRecordCode(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{ukey2.ErrAuthentication, CodeAuthFailed},
		{ukey2.ErrSequenceOverflow, CodeSequenceOverflow},
		{ukey2.ErrRecordTooLarge, CodeRecordTooLarge},
		{context.Canceled, CodeCanceled},
		{errors.New("eof"), CodeTransportFailed},
	}
	for _, tc := range cases {
		if got := ClassifyRecordCode(tc.err); got != tc.want {
			t.Fatalf("ClassifyRecordCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(StageHandshake, CodeRejected, errors.New("user declined"))
	if err.Error() != "handshake (rejected): user declined" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Code != CodeRejected {
		t.Fatalf("expected *Error with code %q", CodeRejected)
	}
	if (&Error{Stage: StageClose, Code: CodeTimeout}).Error() != "close (timeout)" {
		t.Fatalf("unexpected message without cause")
	}
}
