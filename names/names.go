// Package names resolves output file names and claims them on disk without
// ever overwriting an existing file.
package names

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameRunes = 120
	maxClaims    = 10000
)

// ErrNoFreeName is returned when every candidate name is taken.
var ErrNoFreeName = errors.New("names: no free file name")

// Sanitize turns arbitrary text into a file name stem that is safe on
// common filesystems. It returns "" when nothing usable remains.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune(' ')
		case unicode.IsControl(r) || r == utf8.RuneError:
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}

	s := strings.Join(strings.Fields(b.String()), " ")
	s = strings.Trim(s, ". ")
	s = strings.TrimSuffix(s, ".pdf")
	s = strings.TrimSuffix(s, ".PDF")

	if utf8.RuneCountInString(s) > maxNameRunes {
		s = strings.TrimSpace(string([]rune(s)[:maxNameRunes]))
	}
	return s
}

// Resolve picks the first usable name: the caller's, then the document
// title, then any fallback titles, then fallback().
func Resolve(callerName string, titles []string, fallback func() string) string {
	if s := Sanitize(callerName); s != "" {
		return s
	}
	for _, t := range titles {
		if s := Sanitize(t); s != "" {
			return s
		}
	}
	if fallback != nil {
		if s := Sanitize(fallback()); s != "" {
			return s
		}
	}
	return "document"
}

// Candidate returns the n-th candidate path: "<base>.pdf" for n == 0,
// "<base> (n).pdf" otherwise.
func Candidate(dir, base string, n int) string {
	if n == 0 {
		return filepath.Join(dir, base+".pdf")
	}
	return filepath.Join(dir, fmt.Sprintf("%s (%d).pdf", base, n))
}

// Claim moves the finished file at tmpPath to the first free candidate in
// dir and returns its path. The claim is exclusive: an existing file is
// never replaced, even if another process creates it concurrently.
// tmpPath is removed on success.
func Claim(dir, base, tmpPath string) (string, error) {
	for n := 0; n < maxClaims; n++ {
		candidate := Candidate(dir, base, n)

		err := os.Link(tmpPath, candidate)
		if err == nil {
			_ = os.Remove(tmpPath)
			return candidate, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}

		// Hard links are unavailable on some filesystems.
		ok, cerr := copyExclusive(tmpPath, candidate)
		if cerr != nil {
			return "", cerr
		}
		if ok {
			_ = os.Remove(tmpPath)
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFreeName, Candidate(dir, base, 0))
}

// copyExclusive copies src to a newly created dst. ok is false when dst
// already exists.
func copyExclusive(src, dst string) (ok bool, err error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) // #nosec G304 -- derived from output dir
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("names: create %s: %w", dst, err)
	}

	in, err := os.Open(src) // #nosec G304 -- our own temp file
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return false, fmt.Errorf("names: open temp file: %w", err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return false, fmt.Errorf("names: copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return false, fmt.Errorf("names: close %s: %w", dst, err)
	}
	return true, nil
}
