package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/floegence/d2dpair/pairing"
	"github.com/samber/oops"
)

var errNotConfirmed = errors.New("codes do not match")

// promptConfirmer prints the decimal code and waits for a y/yes answer on in.
func promptConfirmer(in *bufio.Reader, out io.Writer, digits int, autoAccept bool) pairing.Confirmer {
	return func(ctx context.Context, verification []byte) error {
		fmt.Fprintf(out, "Verification code: %s\n", pairing.FormatCode(verification, digits))
		if autoAccept {
			return nil
		}
		fmt.Fprint(out, "Does the other device show the same code? [y/N] ")

		type answer struct {
			line string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := in.ReadString('\n')
			ch <- answer{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case a := <-ch:
			if a.err != nil && a.line == "" {
				return oops.Wrapf(a.err, "read confirmation")
			}
			if !isYes(a.line) {
				return errNotConfirmed
			}
			return nil
		}
	}
}

func isYes(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
