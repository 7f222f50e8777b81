//go:build windows

package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func notifySignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func handleSignal(os.Signal, logrus.FieldLogger, *metricsController) bool {
	return false
}
