package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	muxyamux "github.com/floegence/d2dpair/mux/yamux"
	"github.com/floegence/d2dpair/pairerrors"
	"github.com/hashicorp/yamux"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// closeOnDone closes sess when ctx ends so blocked stream calls return.
func closeOnDone(ctx context.Context, sess *yamux.Session) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// sendLine opens one stream, writes msg and prints the peer's reply.
func sendLine(ctx context.Context, conn net.Conn, msg string, out io.Writer, log logrus.FieldLogger) error {
	sess, err := muxyamux.NewClient(conn, muxyamux.Config(log))
	if err != nil {
		return pairerrors.Wrap(pairerrors.StageYamux, pairerrors.CodeMuxFailed, err)
	}
	defer sess.Close()
	defer closeOnDone(ctx, sess)()

	stream, err := sess.OpenStream()
	if err != nil {
		return pairerrors.Wrap(pairerrors.StageYamux, pairerrors.CodeMuxFailed, oops.Wrapf(err, "open stream"))
	}
	defer stream.Close()

	if _, err := io.WriteString(stream, sanitizeLine(msg)+"\n"); err != nil {
		return oops.Wrapf(err, "send message")
	}
	reply, err := bufio.NewReader(stream).ReadString('\n')
	if err != nil {
		return oops.Wrapf(err, "read reply")
	}
	fmt.Fprintf(out, "peer replied: %s\n", strings.TrimRight(reply, "\r\n"))
	return nil
}

// answerLine accepts one stream, prints the received line and echoes it back.
func answerLine(ctx context.Context, conn net.Conn, out io.Writer, log logrus.FieldLogger) error {
	sess, err := muxyamux.NewServer(conn, muxyamux.Config(log))
	if err != nil {
		return pairerrors.Wrap(pairerrors.StageYamux, pairerrors.CodeMuxFailed, err)
	}
	defer sess.Close()
	defer closeOnDone(ctx, sess)()

	stream, err := sess.AcceptStream()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pairerrors.Wrap(pairerrors.StageYamux, pairerrors.CodeMuxFailed, oops.Wrapf(err, "accept stream"))
	}
	defer stream.Close()

	line, err := bufio.NewReader(stream).ReadString('\n')
	if err != nil {
		return oops.Wrapf(err, "read message")
	}
	line = strings.TrimRight(line, "\r\n")
	fmt.Fprintf(out, "peer says: %s\n", line)
	if _, err := io.WriteString(stream, "ack: "+line+"\n"); err != nil {
		return oops.Wrapf(err, "send reply")
	}
	// Drain until the peer closes its side.
	_, _ = io.Copy(io.Discard, stream)
	return nil
}

func sanitizeLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
