package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/topdf/auth"
)

func TestPrompter_AsksOnlyForMissing(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("me@example.com\n1234\n"), &out, auth.Credentials{})

	c, err := p.Credentials(context.Background(), auth.RequirementEmail)
	if err != nil || c.Email != "me@example.com" {
		t.Fatalf("email gate: %+v, %v", c, err)
	}

	// The passcode gate must not ask for the email again.
	c, err = p.Credentials(context.Background(), auth.RequirementEmailAndPasscode)
	if err != nil || c.Email != "me@example.com" || c.Passcode != "1234" {
		t.Fatalf("passcode gate: %+v, %v", c, err)
	}
	if n := strings.Count(out.String(), "email"); n != 1 {
		t.Errorf("asked for email %d times", n)
	}
}

func TestPrompter_KnownEmailSkipsPrompt(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("s3cret\n"), &out, auth.Credentials{Email: "flag@example.com"})

	c, err := p.Credentials(context.Background(), auth.RequirementEmailAndPasscode)
	if err != nil {
		t.Fatal(err)
	}
	if c.Email != "flag@example.com" || c.Passcode != "s3cret" {
		t.Errorf("creds = %+v", c)
	}
	if strings.Contains(out.String(), "email") {
		t.Errorf("unexpected email prompt: %q", out.String())
	}
}

func TestPrompter_EmptyAnswerDeclines(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"blank line", "\n"},
		{"eof", ""},
	}
	for _, tt := range tests {
		p := newPrompter(strings.NewReader(tt.input), &bytes.Buffer{}, auth.Credentials{})
		if _, err := p.Credentials(context.Background(), auth.RequirementEmail); !errors.Is(err, auth.ErrCanceled) {
			t.Errorf("%s: err = %v, want ErrCanceled", tt.name, err)
		}
	}
}

func TestPrompter_CancelRestoresTerminal(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	p := newPrompter(pr, io.Discard, auth.Credentials{Email: "me@example.com"})
	restored := 0
	p.saveTerm = func() (func(), error) {
		return func() { restored++ }, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Credentials(ctx, auth.RequirementEmailAndPasscode)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if restored != 1 {
		t.Errorf("terminal restored %d times, want 1", restored)
	}
}

func TestPrompter_AnswerLeavesTerminalAlone(t *testing.T) {
	p := newPrompter(strings.NewReader("1234\n"), &bytes.Buffer{}, auth.Credentials{Email: "me@example.com"})
	restored := 0
	p.saveTerm = func() (func(), error) {
		return func() { restored++ }, nil
	}

	if _, err := p.Credentials(context.Background(), auth.RequirementEmailAndPasscode); err != nil {
		t.Fatal(err)
	}
	if restored != 0 {
		t.Errorf("terminal restored %d times after a normal answer", restored)
	}
}
