// Package yamux multiplexes streams over a paired SecureConn.
package yamux

import (
	"net"

	"github.com/hashicorp/yamux"
	"github.com/sirupsen/logrus"
)

// Config returns yamux defaults that log through log instead of stderr.
// A nil log keeps yamux's own logger.
func Config(log logrus.FieldLogger) *yamux.Config {
	cfg := yamux.DefaultConfig()
	if log != nil {
		cfg.LogOutput = nil
		cfg.Logger = log.WithField("component", "yamux")
	}
	return cfg
}

// NewClient opens the initiator side of a session. A nil cfg uses Config(nil).
func NewClient(conn net.Conn, cfg *yamux.Config) (*yamux.Session, error) {
	if cfg == nil {
		cfg = Config(nil)
	}
	return yamux.Client(conn, cfg)
}

// NewServer opens the responder side of a session. A nil cfg uses Config(nil).
func NewServer(conn net.Conn, cfg *yamux.Config) (*yamux.Session, error) {
	if cfg == nil {
		cfg = Config(nil)
	}
	return yamux.Server(conn, cfg)
}
