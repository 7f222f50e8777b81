package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/floegence/d2dpair/internal/contextutil"
	"github.com/floegence/d2dpair/internal/wsutil"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/floegence/d2dpair/pairing"
	"github.com/floegence/d2dpair/transport"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newListenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept a pairing over websocket as the responder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runListen(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.String("listen", "127.0.0.1:8080", "listen address (env: D2DPAIR_LISTEN)")
	f.String("path", "/pair", "websocket path (env: D2DPAIR_PATH)")
	f.String("metrics-listen", "", "serve /metrics on this address; SIGUSR1/SIGUSR2 toggle export (env: D2DPAIR_METRICS_LISTEN)")
	f.StringSlice("allow-origin", nil, "allowed Origin value (repeatable); empty allows any (env: D2DPAIR_ALLOW_ORIGIN)")
	f.Bool("allow-no-origin", true, "accept requests without an Origin header (env: D2DPAIR_ALLOW_NO_ORIGIN)")
	f.Bool("once", false, "exit after the first completed session (env: D2DPAIR_ONCE)")
	return cmd
}

// pairHandler upgrades one request at a time to a websocket and runs the
// responder side of the pairing on it.
type pairHandler struct {
	a       *app
	s       settings
	ctx     context.Context
	metrics *metricsController
	busy    chan struct{}

	doneOnce sync.Once
	done     chan struct{}
}

func (h *pairHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.busy <- struct{}{}:
		defer func() { <-h.busy }()
	default:
		http.Error(w, "pairing in progress", http.StatusServiceUnavailable)
		return
	}

	t, err := transport.Upgrade(w, r, transport.UpgraderOptions{
		CheckOrigin: transport.OriginChecker(h.s.AllowOrigin, h.s.AllowNoOrigin),
		ReadLimit:   wsutil.ReadLimit(0, 0),
	})
	if err != nil {
		h.a.log.WithError(pairerrors.Wrap(pairerrors.StageConnect, pairerrors.CodeUpgradeFailed, err)).Warn("websocket upgrade failed")
		return
	}
	defer t.Close()

	log := h.a.log.WithField("remote", r.RemoteAddr)
	conn, err := pairing.Respond(h.ctx, t, h.a.pairingOptions(h.s, h.metrics))
	if err != nil {
		log.WithError(err).Warn("pairing failed")
		fmt.Fprintf(h.a.out, "pairing failed: %v\n", err)
		return
	}
	defer conn.Close()
	fmt.Fprintf(h.a.out, "paired (%s)\n", conn.NextProtocol())

	sessionCtx, cancel := contextutil.Bound(h.ctx, h.s.SessionTimeout)
	defer cancel()
	if err := answerLine(sessionCtx, conn, h.a.out, log); err != nil {
		log.WithError(err).Warn("session failed")
		fmt.Fprintf(h.a.out, "session ended: %v\n", err)
		return
	}
	if h.s.Once {
		h.doneOnce.Do(func() { close(h.done) })
	}
}

func (a *app) runListen(parent context.Context) error {
	s := a.settings()

	var metrics *metricsController
	if s.MetricsListen != "" {
		metrics = newMetricsController()
		metrics.Enable()
	}
	ctx, cancel := signalContext(parent, a.log, metrics)
	defer cancel()

	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return oops.Wrapf(err, "listen on %s", s.Listen)
	}
	h := &pairHandler{
		a:       a,
		s:       s,
		ctx:     ctx,
		metrics: metrics,
		busy:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.Handle(s.Path, h)
	srv := newHTTPServer(s.Listen, mux)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ln) }()
	fmt.Fprintf(a.out, "listening on ws://%s%s\n", ln.Addr(), s.Path)

	var metricsSrv *http.Server
	if metrics != nil {
		mln, err := net.Listen("tcp", s.MetricsListen)
		if err != nil {
			_ = srv.Close()
			return oops.Wrapf(err, "listen on %s", s.MetricsListen)
		}
		metricsSrv = newHTTPServer(s.MetricsListen, metrics.mux())
		go func() { errCh <- metricsSrv.Serve(mln) }()
		fmt.Fprintf(a.out, "metrics on http://%s/metrics\n", mln.Addr())
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case <-h.done:
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}
