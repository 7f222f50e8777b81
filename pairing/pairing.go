// Package pairing runs a UKEY2 handshake over a BinaryTransport, asks the
// user to confirm the verification code, and returns an encrypted net.Conn.
package pairing

import (
	"context"
	"errors"

	"github.com/floegence/d2dpair/crypto/ukey2"
	"github.com/floegence/d2dpair/internal/contextutil"
	"github.com/floegence/d2dpair/observability"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/floegence/d2dpair/transport"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// ErrRejected is the cause reported when Confirm declines the verification code.
var ErrRejected = errors.New("verification code rejected")

// Initiate pairs as the initiator. The transport is not closed on failure.
func Initiate(ctx context.Context, t transport.BinaryTransport, opts Options) (*SecureConn, error) {
	return pair(ctx, t, ukey2.RoleInitiator, opts)
}

// Respond pairs as the responder. The transport is not closed on failure.
func Respond(ctx context.Context, t transport.BinaryTransport, opts Options) (*SecureConn, error) {
	return pair(ctx, t, ukey2.RoleResponder, opts)
}

func pair(ctx context.Context, t transport.BinaryTransport, role ukey2.Role, opts Options) (*SecureConn, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, pairerrors.Wrap(pairerrors.StageValidate, pairerrors.CodeInvalidOption, err)
	}
	if t == nil {
		return nil, pairerrors.Wrap(pairerrors.StageValidate, pairerrors.CodeInvalidOption, oops.Errorf("pairing: transport is nil"))
	}
	hs, err := ukey2.NewWithOptions(role, opts.NextProtocols, opts.Handshake)
	if err != nil {
		return nil, pairerrors.Wrap(pairerrors.StageValidate, pairerrors.CodeInvalidOption, err)
	}
	log := opts.Logger.WithFields(logrus.Fields{"component": "pairing", "role": role.String()})

	ctx, cancel := contextutil.Bound(ctx, opts.HandshakeTimeout)
	defer cancel()

	d := &driver{hs: hs, t: t, role: role, obs: opts.Handshake.Observer}
	if role == ukey2.RoleInitiator {
		err = d.run(ctx, d.send, d.receive, d.send)
	} else {
		err = d.run(ctx, d.receive, d.send, d.receive)
	}
	if err != nil {
		log.WithError(err).Warn("pairing handshake failed")
		return nil, err
	}

	verification, err := hs.GetVerificationString(opts.VerificationLength)
	if err != nil {
		return nil, pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyHandshakeCode(err), err)
	}
	if err := opts.Confirm(ctx, verification); err != nil {
		opts.Handshake.Observer.Handshake(roleLabel(role), observability.HandshakeResultFail, observability.HandshakeReasonRejected)
		log.WithError(err).Info("verification code not confirmed")
		code := pairerrors.CodeRejected
		if ctx.Err() != nil {
			code = pairerrors.ClassifyHandshakeCode(ctx.Err())
		}
		return nil, pairerrors.Wrap(pairerrors.StageConfirm, code, errors.Join(ErrRejected, err))
	}
	if err := hs.VerifyHandshake(); err != nil {
		return nil, pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyHandshakeCode(err), err)
	}
	cc, err := hs.ToConnectionContext()
	if err != nil {
		return nil, pairerrors.Wrap(pairerrors.StageSecure, pairerrors.ClassifyHandshakeCode(err), err)
	}
	cc.SetObserver(opts.RecordObserver)
	log.WithField("next_protocol", cc.NextProtocol().String()).Info("paired")
	return newSecureConn(t, cc, opts.MaxBufferedBytes, log), nil
}

type driver struct {
	hs   *ukey2.Context
	t    transport.BinaryTransport
	role ukey2.Role
	obs  observability.HandshakeObserver
}

func (d *driver) run(ctx context.Context, steps ...func(context.Context) error) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) send(ctx context.Context) error {
	msg, err := d.hs.GetNextHandshakeMessage()
	if err != nil {
		return pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyHandshakeCode(err), err)
	}
	if err := d.t.WriteBinary(ctx, msg); err != nil {
		d.transportFailed(ctx, err)
		return pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyTransportCode(err),
			oops.Wrapf(err, "send handshake message"))
	}
	return nil
}

func (d *driver) receive(ctx context.Context) error {
	msg, err := d.t.ReadBinary(ctx)
	if err != nil {
		d.transportFailed(ctx, err)
		return pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyTransportCode(err),
			oops.Wrapf(err, "receive handshake message"))
	}
	if err := d.hs.ParseHandshakeMessage(msg); err != nil {
		var ae *ukey2.AlertError
		if errors.As(err, &ae) && ae.Alert != nil {
			// Best effort; the handshake has already failed.
			_ = d.t.WriteBinary(ctx, ae.Alert)
		}
		return pairerrors.Wrap(pairerrors.StageHandshake, pairerrors.ClassifyHandshakeCode(err), err)
	}
	return nil
}

// transportFailed reports a handshake that ended on a transport error. Alert
// and internal failures are reported by the handshake context itself.
func (d *driver) transportFailed(ctx context.Context, err error) {
	reason := observability.HandshakeReasonTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		reason = observability.HandshakeReasonTimeout
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		reason = observability.HandshakeReasonCanceled
	}
	d.obs.Handshake(roleLabel(d.role), observability.HandshakeResultFail, reason)
}

func roleLabel(r ukey2.Role) observability.HandshakeRole {
	if r == ukey2.RoleInitiator {
		return observability.HandshakeRoleInitiator
	}
	return observability.HandshakeRoleResponder
}
