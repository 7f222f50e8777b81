package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvLevel names the environment variable consulted when no level is given.
const EnvLevel = "D2DPAIR_LOG_LEVEL"

// Options configures New.
type Options struct {
	// Level is a logrus level name. Empty falls back to $D2DPAIR_LOG_LEVEL;
	// if that is empty too, the logger discards everything.
	Level string
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New builds a logrus logger. Logging is off unless a level is configured.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = strings.TrimSpace(os.Getenv(EnvLevel))
	}
	if level == "" || strings.EqualFold(level, "off") {
		l.SetOutput(io.Discard)
		l.SetLevel(logrus.PanicLevel)
		return l, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	return l, nil
}
