package main

import (
	"bufio"
	"bytes"
	"context"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/floegence/d2dpair/internal/logging"
	"github.com/floegence/d2dpair/pairing"
	"github.com/floegence/d2dpair/transport"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T, stdin string) (*app, *syncBuffer) {
	t.Helper()
	log, err := logging.New(logging.Options{Level: "off"})
	require.NoError(t, err)
	out := &syncBuffer{}
	a := &app{v: viper.New(), in: bufio.NewReader(strings.NewReader(stdin)), out: out, log: log}
	a.v.Set("code-digits", 6)
	a.v.Set("handshake-timeout", 10*time.Second)
	a.v.Set("session-timeout", 10*time.Second)
	a.v.Set("message", "ping")
	return a, out
}

func startResponder(t *testing.T, a *app) (*pairHandler, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := a.settings()
	s.Once = true
	s.AllowNoOrigin = true
	h := &pairHandler{a: a, s: s, ctx: ctx, busy: make(chan struct{}, 1), done: make(chan struct{})}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return h, "ws" + strings.TrimPrefix(ts.URL, "http")
}

var codeLine = regexp.MustCompile(`Verification code: (\d+)`)

func TestDialAndListenExchangeLine(t *testing.T) {
	srv, srvOut := newTestApp(t, "y\n")
	h, url := startResponder(t, srv)

	cli, cliOut := newTestApp(t, "")
	cli.v.Set("yes", true)
	cli.v.Set("url", url)
	require.NoError(t, cli.runDial(context.Background()))

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("responder session did not finish")
	}

	require.Contains(t, cliOut.String(), "peer replied: ack: ping")
	require.Contains(t, srvOut.String(), "peer says: ping")

	cliCode := codeLine.FindStringSubmatch(cliOut.String())
	srvCode := codeLine.FindStringSubmatch(srvOut.String())
	require.Len(t, cliCode, 2)
	require.Len(t, srvCode, 2)
	require.Equal(t, cliCode[1], srvCode[1])
	require.Len(t, cliCode[1], 6)
}

func TestDialFailsWhenResponderRejects(t *testing.T) {
	srv, srvOut := newTestApp(t, "n\n")
	_, url := startResponder(t, srv)

	cli, _ := newTestApp(t, "")
	cli.v.Set("yes", true)
	cli.v.Set("url", url)
	require.Error(t, cli.runDial(context.Background()))
	require.Eventually(t, func() bool {
		return strings.Contains(srvOut.String(), "pairing failed")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSilentPeerReleasesListener(t *testing.T) {
	srv, srvOut := newTestApp(t, "y\n")
	srv.v.Set("session-timeout", 200*time.Millisecond)
	h, url := startResponder(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ws, _, err := transport.Dial(ctx, url, transport.DialOptions{})
	require.NoError(t, err)
	defer ws.Close()
	conn, err := pairing.Initiate(ctx, ws, pairing.Options{Confirm: pairing.AcceptAll})
	require.NoError(t, err)
	defer conn.Close()

	// Paired, but no stream is ever opened.
	require.Eventually(t, func() bool {
		return strings.Contains(srvOut.String(), "session ended") && len(h.busy) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDialRequiresURL(t *testing.T) {
	cli, _ := newTestApp(t, "")
	require.Error(t, cli.runDial(context.Background()))
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"version"}, strings.NewReader(""), &stdout, &stderr)
	require.Zero(t, code, stderr.String())
	require.NotEmpty(t, strings.TrimSpace(stdout.String()))
}

func TestUnknownCommandFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run([]string{"bogus"}, strings.NewReader(""), &stdout, &stderr))
}

func TestInvalidLogLevelFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--log-level", "loud", "version"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid log level")
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("D2DPAIR_URL", "ws://example.test/pair")
	t.Setenv("D2DPAIR_CODE_DIGITS", "8")

	root := newRootCmd(strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	dial, _, err := root.Find([]string{"dial"})
	require.NoError(t, err)
	require.NoError(t, dial.ParseFlags(nil))

	a := &app{v: viper.New()}
	require.NoError(t, a.init(dial, &bytes.Buffer{}))
	s := a.settings()
	require.Equal(t, "ws://example.test/pair", s.URL)
	require.Equal(t, 8, s.Digits)
}
