package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/input"

	"github.com/use-agent/topdf/auth"
)

var errNoField = errors.New("form field not found")

// pollInterval is how often the DOM is re-read while waiting for the gate
// or a submission result.
const pollInterval = 250 * time.Millisecond

// consentWindow bounds the wait for a consent banner's accept control.
const consentWindow = 2 * time.Second

// DetectGate polls the rendered DOM until either a credential form or the
// viewer appears. If neither shows within the detection window the
// document is treated as ungated.
func (s *Session) DetectGate(ctx context.Context) (auth.Requirement, error) {
	dctx, cancel := context.WithTimeout(ctx, s.timing.DetectionTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		html, err := s.HTML(dctx)
		if err == nil {
			if need := auth.ClassifyGate(html); need != auth.RequirementNone {
				return need, nil
			}
			if auth.HasViewer(html) {
				return auth.RequirementNone, nil
			}
		}
		lastErr = err

		select {
		case <-dctx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return auth.RequirementNone, ctxErr
			}
			if lastErr != nil {
				return auth.RequirementNone, fmt.Errorf("read page: %w", lastErr)
			}
			slog.Debug("no gate or viewer seen within detection window", "window", s.timing.DetectionTimeout)
			return auth.RequirementNone, nil
		case <-ticker.C:
		}
	}
}

// Submit fills the fields need calls for, submits once, and watches the
// DOM for a visible result until the detection window closes.
func (s *Session) Submit(ctx context.Context, need auth.Requirement, creds auth.Credentials) (auth.Outcome, error) {
	before, err := s.HTML(ctx)
	if err != nil {
		return auth.OutcomeNoChange, fmt.Errorf("read page: %w", err)
	}

	// ── 1. Fill ───────────────────────────────────────────────────────
	// The email field may already be gone once the passcode step shows.
	lastField := auth.EmailInputSelector
	if err := s.fill(ctx, auth.EmailInputSelector, creds.Email); err != nil {
		if !errors.Is(err, errNoField) || need != auth.RequirementEmailAndPasscode {
			return auth.OutcomeNoChange, fmt.Errorf("fill email: %w", err)
		}
	}
	if need == auth.RequirementEmailAndPasscode {
		if err := s.fill(ctx, auth.PasscodeInputSelector, creds.Passcode); err != nil {
			return auth.OutcomeNoChange, fmt.Errorf("fill passcode: %w", err)
		}
		lastField = auth.PasscodeInputSelector
	}

	// ── 2. Submit once ────────────────────────────────────────────────
	if err := s.submit(ctx, lastField); err != nil {
		return auth.OutcomeNoChange, fmt.Errorf("submit: %w", err)
	}

	// ── 3. Watch for a visible result ─────────────────────────────────
	dctx, cancel := context.WithTimeout(ctx, s.timing.DetectionTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if after, err := s.HTML(dctx); err == nil {
			if out := auth.ClassifyOutcome(before, after, need); out != auth.OutcomeNoChange {
				if out == auth.OutcomeRejected {
					slog.Debug("gate rejected submission", "message", auth.ErrorText(after))
				}
				return out, nil
			}
		}
		select {
		case <-dctx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return auth.OutcomeNoChange, ctxErr
			}
			return auth.OutcomeNoChange, nil
		case <-ticker.C:
		}
	}
}

func (s *Session) fill(ctx context.Context, selector, value string) error {
	p := s.page.Context(ctx)
	has, el, err := p.Has(selector)
	if err != nil {
		return err
	}
	if !has {
		return errNoField
	}
	if err := el.SelectAllText(); err != nil {
		slog.Debug("could not select existing field text", "error", err)
	}
	return el.Input(value)
}

// submit clicks the form's submit control, falling back to Enter in the
// last filled field.
func (s *Session) submit(ctx context.Context, lastField string) error {
	p := s.page.Context(ctx)
	res, err := p.Eval(jsSubmitForm, lastField)
	if err == nil && res.Value.Bool() {
		return nil
	}
	has, el, hasErr := p.Has(lastField)
	if hasErr != nil {
		return hasErr
	}
	if !has {
		return errNoField
	}
	return el.Type(input.Enter)
}

// DismissConsent clicks a recognized accept control, polling briefly for
// banners that render late, or, failing that, hides known consent overlays.
func (s *Session) DismissConsent(ctx context.Context) error {
	accepted, err := pollFor(ctx, consentWindow, pollInterval, func(ctx context.Context) (bool, error) {
		res, err := s.page.Context(ctx).Eval(jsAcceptConsent)
		if err != nil {
			return false, err
		}
		return res.Value.Bool(), nil
	})
	if err != nil {
		return err
	}
	if accepted {
		slog.Debug("cookie consent accepted")
		return nil
	}

	res, err := s.page.Context(ctx).Eval(jsHideConsent)
	if err != nil {
		return err
	}
	if n := res.Value.Int(); n > 0 {
		slog.Debug("cookie consent overlays hidden", "count", n)
	}
	return nil
}

// pollFor runs check every interval until it reports true or window
// elapses. A check cut short by the window counts as not found; ctx
// ending is returned as an error.
func pollFor(ctx context.Context, window, interval time.Duration, check func(context.Context) (bool, error)) (bool, error) {
	wctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := check(wctx)
		if ok {
			return true, nil
		}
		if err != nil && wctx.Err() == nil {
			return false, err
		}

		select {
		case <-wctx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
