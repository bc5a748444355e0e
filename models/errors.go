package models

import (
	"errors"
	"fmt"
)

// Kind classifies a conversion failure. Kinds form a small hierarchy so
// callers can match either a precise cause or its whole family.
type Kind string

const (
	KindInvalidTarget      Kind = "INVALID_TARGET"
	KindAuthentication     Kind = "AUTHENTICATION_FAILED"
	KindEmailRequired      Kind = "EMAIL_REQUIRED"
	KindPasscodeRequired   Kind = "PASSCODE_REQUIRED"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindScraping           Kind = "SCRAPING_FAILED"
	KindPageLoad           Kind = "PAGE_LOAD_FAILED"
	KindScreenshot         Kind = "SCREENSHOT_FAILED"
	KindPDFBuild           Kind = "PDF_BUILD_FAILED"
	KindTimeout            Kind = "TIMEOUT"
	KindCanceled           Kind = "CANCELED"
)

// Parent returns the family a kind belongs to, or "" for top-level kinds.
func (k Kind) Parent() Kind {
	switch k {
	case KindEmailRequired, KindPasscodeRequired, KindInvalidCredentials:
		return KindAuthentication
	case KindPageLoad, KindScreenshot:
		return KindScraping
	}
	return ""
}

// Within reports whether k equals family or descends from it.
func (k Kind) Within(family Kind) bool {
	for c := k; c != ""; c = c.Parent() {
		if c == family {
			return true
		}
	}
	return false
}

// API-level error codes that do not come out of a conversion.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	Page    int    `json:"page,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Sentinels for errors.Is. A family sentinel such as ErrAuthentication
// matches every kind beneath it.
var (
	ErrInvalidTarget      error = &kindSentinel{KindInvalidTarget}
	ErrAuthentication     error = &kindSentinel{KindAuthentication}
	ErrEmailRequired      error = &kindSentinel{KindEmailRequired}
	ErrPasscodeRequired   error = &kindSentinel{KindPasscodeRequired}
	ErrInvalidCredentials error = &kindSentinel{KindInvalidCredentials}
	ErrScraping           error = &kindSentinel{KindScraping}
	ErrPageLoad           error = &kindSentinel{KindPageLoad}
	ErrScreenshot         error = &kindSentinel{KindScreenshot}
	ErrPDFBuild           error = &kindSentinel{KindPDFBuild}
	ErrTimeout            error = &kindSentinel{KindTimeout}
	ErrCanceled           error = &kindSentinel{KindCanceled}
)

type kindSentinel struct{ kind Kind }

func (s *kindSentinel) Error() string { return string(s.kind) }

// ConvertError is the error type every stage of a conversion returns.
// It implements the error interface and supports error wrapping via Unwrap.
type ConvertError struct {
	Kind    Kind
	Stage   string // "resolve", "auth", "capture", "assemble", "write"
	Page    int    // 1-based page index, 0 when not page specific
	Message string
	Err     error // wrapped original error
}

func (e *ConvertError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("page %d: %s", e.Page, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ConvertError) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels, including the family a kind belongs to.
func (e *ConvertError) Is(target error) bool {
	s, ok := target.(*kindSentinel)
	if !ok {
		return false
	}
	return e.Kind.Within(s.kind)
}

// Hint is a short, user-facing suggestion for what to do next.
func (e *ConvertError) Hint() string {
	switch e.Kind {
	case KindInvalidTarget:
		return "use a link of the form https://docsend.com/view/<id>"
	case KindEmailRequired:
		return "this document asks for an email address; supply one and retry"
	case KindPasscodeRequired:
		return "this document is protected by a passcode; supply it and retry"
	case KindInvalidCredentials, KindAuthentication:
		return "the document rejected the credentials; check the email and passcode"
	case KindPageLoad:
		return "the document could not be opened; check the link and your connection"
	case KindScreenshot, KindScraping:
		return "a page did not render in time; retry, or raise the render timeout"
	case KindPDFBuild:
		return "the captured pages could not be assembled; check free disk space"
	case KindTimeout:
		return "the document did not respond in time; retry later"
	}
	return ""
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ConvertError) ToDetail() *ErrorDetail {
	return &ErrorDetail{
		Code:    string(e.Kind),
		Message: e.Message,
		Stage:   e.Stage,
		Page:    e.Page,
		Hint:    e.Hint(),
	}
}

// NewConvertError creates a new ConvertError.
func NewConvertError(kind Kind, message string, err error) *ConvertError {
	return &ConvertError{Kind: kind, Message: message, Err: err}
}

// WithStage sets the stage and returns e for chaining.
func (e *ConvertError) WithStage(stage string) *ConvertError {
	e.Stage = stage
	return e
}

// WithPage sets the page index and returns e for chaining.
func (e *ConvertError) WithPage(page int) *ConvertError {
	e.Page = page
	return e
}

// KindOf returns the kind carried by err, or "" when err is not a
// ConvertError.
func KindOf(err error) Kind {
	var ce *ConvertError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// AsConvertError extracts the ConvertError from err's chain.
func AsConvertError(err error) (*ConvertError, bool) {
	var ce *ConvertError
	ok := errors.As(err, &ce)
	return ce, ok
}
