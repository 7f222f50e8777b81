package main

import (
	"context"
	"fmt"

	"github.com/floegence/d2dpair/internal/contextutil"
	"github.com/floegence/d2dpair/internal/wsutil"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/floegence/d2dpair/pairing"
	"github.com/floegence/d2dpair/transport"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newDialCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect to a listener and pair as the initiator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDial(cmd.Context())
		},
	}
	cmd.Flags().String("url", "ws://127.0.0.1:8080/pair", "websocket URL of the listener (env: D2DPAIR_URL)")
	return cmd
}

func (a *app) runDial(parent context.Context) error {
	s := a.settings()
	if s.URL == "" {
		return pairerrors.Wrap(pairerrors.StageValidate, pairerrors.CodeInvalidOption, oops.Errorf("missing --url"))
	}
	ctx, cancel := signalContext(parent, a.log, nil)
	defer cancel()

	dialCtx, dialCancel := contextutil.Bound(ctx, s.HandshakeTimeout)
	t, _, err := transport.Dial(dialCtx, s.URL, transport.DialOptions{ReadLimit: wsutil.ReadLimit(0, 0)})
	dialCancel()
	if err != nil {
		return pairerrors.Wrap(pairerrors.StageConnect, pairerrors.ClassifyConnectCode(err), oops.Wrapf(err, "dial %s", s.URL))
	}
	defer t.Close()

	conn, err := pairing.Initiate(ctx, t, a.pairingOptions(s, nil))
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Fprintf(a.out, "paired (%s)\n", conn.NextProtocol())

	sessionCtx, sessionCancel := contextutil.Bound(ctx, s.SessionTimeout)
	defer sessionCancel()
	return sendLine(sessionCtx, conn, s.Message, a.out, a.log)
}
