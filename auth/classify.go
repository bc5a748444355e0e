package auth

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/topdf/simhash"
)

// Selectors for the gate form. The viewer uses a Rails-style form whose
// field names are nested under link_auth_form. The string forms are shared
// with the browser backend, which locates the same fields to fill them.
const (
	EmailInputSelector    = `input[type="email"], input[name*="email"], input[id*="email"], input[autocomplete="email"]`
	PasscodeInputSelector = `input[type="password"], input[name*="passcode"], input[id*="passcode"]`
	GateErrorSelector     = `.alert-danger, .alert-error, .form-error, .invalid-feedback, .error-message, [role="alert"], .help-block.error`
	ViewerSelector        = `.document-viewer, #viewer, .page-label, [data-testid="page-indicator"], .toolbar-page-indicator`
)

var (
	emailInputSel    = cascadia.MustCompile(EmailInputSelector)
	passcodeInputSel = cascadia.MustCompile(PasscodeInputSelector)
	gateErrorSel     = cascadia.MustCompile(GateErrorSelector)
	viewerSel        = cascadia.MustCompile(ViewerSelector)
)

// ClassifyGate inspects an HTML snapshot and reports which credentials the
// document asks for. A visible passcode field always means both.
func ClassifyGate(htmlStr string) Requirement {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return RequirementNone
	}
	return classifyDoc(doc)
}

func classifyDoc(doc *goquery.Document) Requirement {
	if anyVisible(doc.FindMatcher(passcodeInputSel)) {
		return RequirementEmailAndPasscode
	}
	if anyVisible(doc.FindMatcher(emailInputSel)) {
		return RequirementEmail
	}
	return RequirementNone
}

// HasViewer reports whether the snapshot shows the document viewer.
func HasViewer(htmlStr string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return false
	}
	return doc.FindMatcher(viewerSel).Length() > 0
}

// ClassifyOutcome compares the snapshots taken before and after a single
// submission of the form for submitted.
//
// A validation message only counts as a rejection when it is new: either
// its text differs from before, or the page structure changed around it.
func ClassifyOutcome(before, after string, submitted Requirement) Outcome {
	afterDoc, err := goquery.NewDocumentFromReader(strings.NewReader(after))
	if err != nil {
		return OutcomeNoChange
	}

	now := classifyDoc(afterDoc)
	if now == RequirementNone {
		return OutcomeAccepted
	}
	if submitted == RequirementEmail && now == RequirementEmailAndPasscode {
		return OutcomePasscodeRequired
	}

	errAfter := errorText(afterDoc)
	if errAfter != "" {
		errBefore := ""
		if beforeDoc, err := goquery.NewDocumentFromReader(strings.NewReader(before)); err == nil {
			errBefore = errorText(beforeDoc)
		}
		if errAfter != errBefore || simhash.DOM(before) != simhash.DOM(after) {
			return OutcomeRejected
		}
	}
	return OutcomeNoChange
}

// ErrorText returns the visible validation message in a snapshot, if any.
func ErrorText(htmlStr string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	return errorText(doc)
}

func errorText(doc *goquery.Document) string {
	var parts []string
	doc.FindMatcher(gateErrorSel).Each(func(_ int, s *goquery.Selection) {
		if !visible(s) {
			return
		}
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " | ")
}

func anyVisible(sel *goquery.Selection) bool {
	found := false
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if visible(s) {
			found = true
			return false
		}
		return true
	})
	return found
}

// visible approximates CSS visibility from markup: the element and its
// ancestors must not be hidden by attribute or inline style.
func visible(s *goquery.Selection) bool {
	if t, ok := s.Attr("type"); ok && strings.EqualFold(t, "hidden") {
		return false
	}
	for cur := s; cur.Length() > 0; cur = cur.Parent() {
		if _, ok := cur.Attr("hidden"); ok {
			return false
		}
		if v, ok := cur.Attr("aria-hidden"); ok && v == "true" {
			return false
		}
		if style, ok := cur.Attr("style"); ok {
			st := strings.ReplaceAll(strings.ToLower(style), " ", "")
			if strings.Contains(st, "display:none") || strings.Contains(st, "visibility:hidden") {
				return false
			}
		}
	}
	return true
}
