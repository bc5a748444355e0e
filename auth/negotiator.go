package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/use-agent/topdf/models"
)

const stage = "auth"

// Negotiator drives one document from UNKNOWN to AUTHENTICATED or FAILED.
// Each gate gets exactly one submission; nothing is retried automatically.
// A Negotiator is single use.
type Negotiator struct {
	credFn CredentialFunc

	mu          sync.Mutex
	state       State
	transitions []State
}

// NewNegotiator creates a Negotiator. credFn may be nil, in which case a
// missing credential fails immediately.
func NewNegotiator(credFn CredentialFunc) *Negotiator {
	return &Negotiator{credFn: credFn, state: StateUnknown}
}

// State returns the current state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Transitions returns every state entered, in order.
func (n *Negotiator) Transitions() []State {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]State, len(n.transitions))
	copy(out, n.transitions)
	return out
}

func (n *Negotiator) enter(s State) {
	n.mu.Lock()
	n.state = s
	n.transitions = append(n.transitions, s)
	n.mu.Unlock()
	slog.Debug("auth state", "state", s.String())
}

func (n *Negotiator) fail(err *models.ConvertError) error {
	n.enter(StateFailed)
	if err.Stage == "" {
		err.Stage = stage
	}
	return err
}

// Negotiate inspects the loaded document through gate and satisfies any
// credential form. creds may be partially or entirely empty.
func (n *Negotiator) Negotiate(ctx context.Context, gate Gate, creds Credentials) error {
	// ── 1. First page load has happened: state is UNKNOWN ──────────────
	n.enter(StateUnknown)

	// ── 2. Detect the gate ────────────────────────────────────────────
	need, err := gate.DetectGate(ctx)
	if err != nil {
		return n.fail(classifySessionError(err, "could not inspect the document for a login form"))
	}
	slog.Info("auth gate detected", "requirement", need.String())

	switch need {
	case RequirementNone:
		n.enter(StateNone)
		n.authenticated(ctx, gate)
		return nil

	case RequirementEmail:
		n.enter(StateEmail)
		if creds, err = n.ensure(ctx, RequirementEmail, creds); err != nil {
			return err
		}
		outcome, err := gate.Submit(ctx, RequirementEmail, creds)
		if err != nil {
			return n.fail(classifySessionError(err, "email submission failed"))
		}
		slog.Info("email submitted", "outcome", outcome.String())

		switch outcome {
		case OutcomeAccepted:
			n.authenticated(ctx, gate)
			return nil
		case OutcomeRejected:
			return n.fail(models.NewConvertError(models.KindInvalidCredentials, "the email address was rejected", nil))
		case OutcomeNoChange:
			return n.fail(models.NewConvertError(models.KindTimeout, "email submission produced no visible result", nil))
		}
		// OutcomePasscodeRequired: the passcode field was revealed.
		return n.passcodeGate(ctx, gate, creds)

	default:
		return n.passcodeGate(ctx, gate, creds)
	}
}

func (n *Negotiator) passcodeGate(ctx context.Context, gate Gate, creds Credentials) error {
	n.enter(StateEmailAndPasscode)

	creds, err := n.ensure(ctx, RequirementEmailAndPasscode, creds)
	if err != nil {
		return err
	}

	outcome, err := gate.Submit(ctx, RequirementEmailAndPasscode, creds)
	if err != nil {
		return n.fail(classifySessionError(err, "passcode submission failed"))
	}
	slog.Info("passcode submitted", "outcome", outcome.String())

	switch outcome {
	case OutcomeAccepted:
		n.authenticated(ctx, gate)
		return nil
	case OutcomeNoChange:
		return n.fail(models.NewConvertError(models.KindTimeout, "passcode submission produced no visible result", nil))
	default:
		return n.fail(models.NewConvertError(models.KindInvalidCredentials, "the email or passcode was rejected", nil))
	}
}

// ensure fills in whatever need asks for and creds lacks, consulting the
// credential callback once.
func (n *Negotiator) ensure(ctx context.Context, need Requirement, creds Credentials) (Credentials, error) {
	if !missing(need, creds) {
		return creds, nil
	}

	if n.credFn != nil {
		got, err := n.credFn(ctx, need)
		if err == nil {
			if got.Email != "" {
				creds.Email = got.Email
			}
			if got.Passcode != "" {
				creds.Passcode = got.Passcode
			}
		} else {
			slog.Info("credential request declined", "requirement", need.String(), "error", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return creds, n.fail(models.NewConvertError(models.KindCanceled, "conversion canceled while waiting for credentials", ctxErr))
			}
		}
	}

	if creds.Email == "" {
		return creds, n.fail(models.NewConvertError(models.KindEmailRequired, "this document requires an email address", nil))
	}
	if need == RequirementEmailAndPasscode && creds.Passcode == "" {
		return creds, n.fail(models.NewConvertError(models.KindPasscodeRequired, "this document requires a passcode", nil))
	}
	return creds, nil
}

func missing(need Requirement, creds Credentials) bool {
	switch need {
	case RequirementEmail:
		return creds.Email == ""
	case RequirementEmailAndPasscode:
		return creds.Email == "" || creds.Passcode == ""
	}
	return false
}

// authenticated enters AUTHENTICATED and clears consent overlays. Overlay
// failures never fail the run.
func (n *Negotiator) authenticated(ctx context.Context, gate Gate) {
	n.enter(StateAuthenticated)
	if err := gate.DismissConsent(ctx); err != nil {
		slog.Warn("consent dismissal failed, continuing", "error", err)
	}
}

// classifySessionError keeps typed errors from the backend and maps plain
// ones onto the taxonomy.
func classifySessionError(err error, msg string) *models.ConvertError {
	if ce, ok := models.AsConvertError(err); ok {
		return ce
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewConvertError(models.KindTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewConvertError(models.KindCanceled, "conversion canceled", err)
	default:
		return models.NewConvertError(models.KindPageLoad, msg, err)
	}
}
