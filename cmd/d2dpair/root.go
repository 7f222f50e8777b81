package main

import (
	"bufio"
	"io"
	"strings"
	"time"

	"github.com/floegence/d2dpair/internal/logging"
	"github.com/floegence/d2dpair/pairing"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix             = "D2DPAIR"
	defaultSessionTimeout = time.Minute
)

type app struct {
	v   *viper.Viper
	in  *bufio.Reader
	out io.Writer
	log *logrus.Logger
}

// settings is the resolved view of flags, D2DPAIR_* variables and the config file.
type settings struct {
	Listen           string
	Path             string
	MetricsListen    string
	AllowOrigin      []string
	AllowNoOrigin    bool
	Once             bool
	URL              string
	Yes              bool
	Digits           int
	HandshakeTimeout time.Duration
	SessionTimeout   time.Duration
	Message          string
}

func newRootCmd(stdin io.Reader, stdout io.Writer, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), in: bufio.NewReader(stdin), out: stdout}

	root := &cobra.Command{
		Use:           "d2dpair",
		Short:         "Pair two devices with UKEY2 and exchange a message over the secured channel",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, stderr)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml) (env: D2DPAIR_CONFIG)")
	pf.String("log-level", "", "log level: debug, info, warn, error; empty disables logging (env: D2DPAIR_LOG_LEVEL)")
	pf.String("log-format", "text", "log format: text or json (env: D2DPAIR_LOG_FORMAT)")
	pf.Bool("yes", false, "accept the verification code without prompting (env: D2DPAIR_YES)")
	pf.Int("code-digits", pairing.DefaultCodeDigits, "digits in the displayed verification code (env: D2DPAIR_CODE_DIGITS)")
	pf.Duration("handshake-timeout", pairing.DefaultHandshakeTimeout, "bound on handshake and confirmation (env: D2DPAIR_HANDSHAKE_TIMEOUT)")
	pf.Duration("session-timeout", defaultSessionTimeout, "bound on the message exchange after pairing; 0 disables (env: D2DPAIR_SESSION_TIMEOUT)")
	pf.String("message", "hello", "line sent over the paired channel (env: D2DPAIR_MESSAGE)")

	root.AddCommand(newListenCmd(a), newDialCmd(a), newVersionCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command, stderr io.Writer) error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return oops.Wrapf(err, "bind flags")
	}
	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return oops.Wrapf(err, "read config %s", file)
		}
	}
	log, err := logging.New(logging.Options{
		Level:  a.v.GetString("log-level"),
		Format: a.v.GetString("log-format"),
		Output: stderr,
	})
	if err != nil {
		return err
	}
	a.log = log
	if used := a.v.ConfigFileUsed(); used != "" {
		a.log.WithField("config", used).Debug("using config file")
	}
	return nil
}

func (a *app) settings() settings {
	return settings{
		Listen:           a.v.GetString("listen"),
		Path:             a.v.GetString("path"),
		MetricsListen:    a.v.GetString("metrics-listen"),
		AllowOrigin:      a.v.GetStringSlice("allow-origin"),
		AllowNoOrigin:    a.v.GetBool("allow-no-origin"),
		Once:             a.v.GetBool("once"),
		URL:              a.v.GetString("url"),
		Yes:              a.v.GetBool("yes"),
		Digits:           a.v.GetInt("code-digits"),
		HandshakeTimeout: a.v.GetDuration("handshake-timeout"),
		SessionTimeout:   a.v.GetDuration("session-timeout"),
		Message:          a.v.GetString("message"),
	}
}

func (a *app) pairingOptions(s settings, metrics *metricsController) pairing.Options {
	opts := pairing.Options{
		Confirm:          promptConfirmer(a.in, a.out, s.Digits, s.Yes),
		HandshakeTimeout: s.HandshakeTimeout,
		Logger:           a.log,
	}
	if metrics != nil {
		opts.Handshake.Observer = metrics.handshake
		opts.RecordObserver = metrics.record
	}
	return opts
}
