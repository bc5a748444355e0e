package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/use-agent/topdf/auth"
)

// prompter asks on the terminal for credentials the flags did not supply.
// It remembers answers so an email given for the email gate is not asked
// for again at the passcode gate.
type prompter struct {
	in    *bufio.Reader
	fd    int // terminal fd for hidden passcode input, or -1
	out   io.Writer
	known auth.Credentials

	// saveTerm snapshots the terminal mode so a hidden read abandoned on
	// cancel does not leave echo off. Nil when stdin is not a terminal.
	saveTerm func() (restore func(), err error)
}

func newPrompter(stdin io.Reader, out io.Writer, known auth.Credentials) *prompter {
	fd := -1
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	p := &prompter{in: bufio.NewReader(stdin), fd: fd, out: out, known: known}
	if fd >= 0 {
		p.saveTerm = func() (func(), error) {
			st, err := term.GetState(fd)
			if err != nil {
				return nil, err
			}
			return func() { _ = term.Restore(fd, st) }, nil
		}
	}
	return p
}

// Credentials implements auth.CredentialFunc. An empty answer, EOF or a
// canceled context declines.
func (p *prompter) Credentials(ctx context.Context, need auth.Requirement) (auth.Credentials, error) {
	type answer struct {
		creds auth.Credentials
		err   error
	}
	var restore func()
	if p.saveTerm != nil {
		r, err := p.saveTerm()
		if err != nil {
			slog.Debug("could not save terminal state", "error", err)
		}
		restore = r
	}

	done := make(chan answer, 1)
	go func() {
		c, err := p.ask(need)
		done <- answer{c, err}
	}()

	select {
	case <-ctx.Done():
		if restore != nil {
			restore()
			fmt.Fprintln(p.out)
		}
		return auth.Credentials{}, ctx.Err()
	case a := <-done:
		return a.creds, a.err
	}
}

func (p *prompter) ask(need auth.Requirement) (auth.Credentials, error) {
	if p.known.Email == "" {
		email, err := p.readLine("This document asks for your email: ")
		if err != nil || email == "" {
			return auth.Credentials{}, auth.ErrCanceled
		}
		p.known.Email = email
	}

	if need == auth.RequirementEmailAndPasscode && p.known.Passcode == "" {
		passcode, err := p.readSecret("Passcode: ")
		if err != nil || passcode == "" {
			return auth.Credentials{}, auth.ErrCanceled
		}
		p.known.Passcode = passcode
	}
	return p.known, nil
}

func (p *prompter) readLine(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// readSecret hides input on a terminal and falls back to a plain line.
func (p *prompter) readSecret(label string) (string, error) {
	if p.fd < 0 {
		return p.readLine(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
