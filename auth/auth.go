// Package auth detects and satisfies the email / passcode gate that can
// stand in front of a shared document.
package auth

import (
	"context"
	"errors"
)

// Requirement is what a document asks for before it can be viewed.
type Requirement int

const (
	RequirementNone Requirement = iota
	RequirementEmail
	RequirementEmailAndPasscode
)

func (r Requirement) String() string {
	switch r {
	case RequirementEmail:
		return "EMAIL"
	case RequirementEmailAndPasscode:
		return "EMAIL_AND_PASSCODE"
	default:
		return "NONE"
	}
}

// State is a node of the negotiation state machine.
type State int

const (
	StateUnknown State = iota
	StateNone
	StateEmail
	StateEmailAndPasscode
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateEmail:
		return "EMAIL"
	case StateEmailAndPasscode:
		return "EMAIL_AND_PASSCODE"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the visible result of one credential submission.
type Outcome int

const (
	// OutcomeNoChange means nothing observable happened within the
	// detection window.
	OutcomeNoChange Outcome = iota
	OutcomeAccepted
	// OutcomePasscodeRequired means the email was accepted and a passcode
	// field was revealed.
	OutcomePasscodeRequired
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomePasscodeRequired:
		return "passcode_required"
	case OutcomeRejected:
		return "rejected"
	default:
		return "no_change"
	}
}

// Credentials are held in memory for one negotiation and never persisted.
type Credentials struct {
	Email    string
	Passcode string
}

// String never reveals the passcode.
func (c Credentials) String() string {
	pc := ""
	if c.Passcode != "" {
		pc = "***"
	}
	return "{email:" + c.Email + " passcode:" + pc + "}"
}

// Gate is the capability a browser backend exposes to the negotiator.
type Gate interface {
	// DetectGate reports which credentials the loaded document asks for.
	// It waits at most the detection window for a form to appear.
	DetectGate(ctx context.Context) (Requirement, error)

	// Submit fills the fields visible for need from creds, submits the
	// form once, and reports what happened within the detection window.
	Submit(ctx context.Context, need Requirement, creds Credentials) (Outcome, error)

	// DismissConsent clears cookie-consent overlays. Best effort.
	DismissConsent(ctx context.Context) error
}

// CredentialFunc supplies missing credentials on demand, typically by
// prompting a person. It may block until they answer. Returning an error
// (ErrCanceled, or the context's error) aborts the negotiation.
type CredentialFunc func(ctx context.Context, need Requirement) (Credentials, error)

// ErrCanceled is returned by a CredentialFunc when the person declines to
// provide credentials.
var ErrCanceled = errors.New("auth: credential request canceled")
