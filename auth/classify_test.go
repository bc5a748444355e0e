package auth

import "testing"

const (
	viewerHTML = `<html><body>
<div class="document-viewer"><img src="p1.png"></div>
<div class="toolbar-page-indicator">1 of 12</div>
</body></html>`

	emailGateHTML = `<html><body>
<form id="link_auth_form">
  <input type="hidden" name="authenticity_token" value="x">
  <input type="email" name="link_auth_form[email]" id="link_auth_form_email">
  <div class="passcode-row" style="display: none">
    <input type="password" name="link_auth_form[passcode]" id="link_auth_form_passcode">
  </div>
  <button type="submit">Continue</button>
</form>
</body></html>`

	passcodeGateHTML = `<html><body>
<form id="link_auth_form">
  <input type="email" name="link_auth_form[email]" id="link_auth_form_email" value="a@b.co">
  <div class="passcode-row">
    <input type="password" name="link_auth_form[passcode]" id="link_auth_form_passcode">
  </div>
  <button type="submit">Continue</button>
</form>
</body></html>`

	rejectedHTML = `<html><body>
<form id="link_auth_form">
  <div class="alert alert-danger" role="alert">Passcode is incorrect</div>
  <input type="email" name="link_auth_form[email]" id="link_auth_form_email" value="a@b.co">
  <div class="passcode-row">
    <input type="password" name="link_auth_form[passcode]" id="link_auth_form_passcode">
  </div>
  <button type="submit">Continue</button>
</form>
</body></html>`
)

func TestClassifyGate(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Requirement
	}{
		{"viewer", viewerHTML, RequirementNone},
		{"email gate with hidden passcode", emailGateHTML, RequirementEmail},
		{"passcode revealed", passcodeGateHTML, RequirementEmailAndPasscode},
		{"hidden email only", `<form><input type="hidden" name="email"></form>`, RequirementNone},
		{"aria hidden", `<div aria-hidden="true"><input type="email"></div>`, RequirementNone},
		{"empty", ``, RequirementNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyGate(tt.html); got != tt.want {
				t.Errorf("ClassifyGate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name          string
		before, after string
		submitted     Requirement
		want          Outcome
	}{
		{"email accepted", emailGateHTML, viewerHTML, RequirementEmail, OutcomeAccepted},
		{"passcode revealed", emailGateHTML, passcodeGateHTML, RequirementEmail, OutcomePasscodeRequired},
		{"passcode rejected", passcodeGateHTML, rejectedHTML, RequirementEmailAndPasscode, OutcomeRejected},
		{"passcode accepted", passcodeGateHTML, viewerHTML, RequirementEmailAndPasscode, OutcomeAccepted},
		{"nothing happened", emailGateHTML, emailGateHTML, RequirementEmail, OutcomeNoChange},
		{"stale error", rejectedHTML, rejectedHTML, RequirementEmailAndPasscode, OutcomeNoChange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyOutcome(tt.before, tt.after, tt.submitted); got != tt.want {
				t.Errorf("ClassifyOutcome = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasViewer(t *testing.T) {
	if !HasViewer(viewerHTML) {
		t.Error("expected viewer to be detected")
	}
	if HasViewer(emailGateHTML) {
		t.Error("gate page should not look like the viewer")
	}
}

func TestErrorText(t *testing.T) {
	if got := ErrorText(rejectedHTML); got != "Passcode is incorrect" {
		t.Errorf("ErrorText = %q", got)
	}
	if got := ErrorText(`<div class="alert-danger" hidden>old</div>`); got != "" {
		t.Errorf("hidden error should be ignored, got %q", got)
	}
}
