//go:build !windows

package main

import (
	"os"
	"syscall"

	"github.com/sirupsen/logrus"
)

func notifySignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2}
}

// handleSignal returns true if the signal was handled and the process should keep running.
func handleSignal(sig os.Signal, log logrus.FieldLogger, metrics *metricsController) bool {
	switch sig {
	case syscall.SIGUSR1:
		if metrics == nil {
			log.Warn("metrics disabled (missing --metrics-listen)")
			return true
		}
		metrics.Enable()
		log.Info("metrics enabled")
		return true
	case syscall.SIGUSR2:
		if metrics != nil {
			metrics.Disable()
			log.Info("metrics disabled")
		}
		return true
	default:
		return false
	}
}
