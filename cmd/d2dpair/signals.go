package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
)

// signalContext is cancelled by a shutdown signal. Runtime toggles such as
// the metrics signals are handled in place.
func signalContext(parent context.Context, log logrus.FieldLogger, metrics *metricsController) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, notifySignals()...)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if handleSignal(sig, log, metrics) {
					continue
				}
				log.WithField("signal", sig.String()).Info("shutting down")
				cancel()
				return
			}
		}
	}()
	return ctx, cancel
}
