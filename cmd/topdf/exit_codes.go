package main

import (
	"errors"
	"io/fs"

	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/models"
)

// Exit codes for the topdf CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful conversion
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or link
	ExitIO      = 3 // Output could not be written
	ExitBrowser = 4 // Browser, page load, or capture errors
	ExitAuth    = 5 // Email or passcode missing or rejected
)

// errUsage marks command-line mistakes.
var errUsage = errors.New("usage error")

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, models.ErrAuthentication):
		return ExitAuth
	case errors.Is(err, models.ErrScraping), errors.Is(err, models.ErrTimeout):
		return ExitBrowser
	case errors.Is(err, models.ErrInvalidTarget),
		errors.Is(err, errUsage),
		errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, config.ErrConfigParse),
		errors.Is(err, config.ErrConfigInvalid):
		return ExitUsage
	}

	// A PDF that could not be written surfaces as a build error wrapping
	// the file system cause.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrPermission) || errors.Is(err, models.ErrPDFBuild) {
		return ExitIO
	}

	return ExitGeneral
}
