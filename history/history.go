// Package history remembers recent conversions in a small JSON file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSize is the number of entries kept when none is configured.
const DefaultSize = 10

// Entry is one finished conversion.
type Entry struct {
	Name      string    `json:"name"`
	Path      string    `json:"pdf_path"`
	URL       string    `json:"url,omitempty"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store is a bounded, newest-first list of entries persisted to path.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry
	now     func() time.Time
}

// Open loads the store at path. A missing or corrupt file starts empty.
func Open(path string, size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	s := &Store{path: path, max: size, now: time.Now}
	s.load()
	return s
}

func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("could not read history", "path", s.path, "error", err)
		}
		return
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("ignoring corrupt history file", "path", s.path, "error", err)
		return
	}
	if len(entries) > s.max {
		entries = entries[:s.max]
	}
	s.entries = entries
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("history: replace: %w", err)
	}
	return nil
}

// Add records a conversion at the front, dropping any older entry for the
// same path and trimming to the configured size.
func (s *Store) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	kept := make([]Entry, 0, len(s.entries)+1)
	kept = append(kept, e)
	for _, old := range s.entries {
		if old.Path != e.Path {
			kept = append(kept, old)
		}
	}
	if len(kept) > s.max {
		kept = kept[:s.max]
	}
	s.entries = kept
	return s.saveLocked()
}

// All returns every entry, newest first.
func (s *Store) All() []Entry {
	return s.Recent(0)
}

// Recent returns up to n entries, newest first. n <= 0 means all.
func (s *Store) Recent(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out
}

// Remove deletes the entry for path, reporting whether one existed.
func (s *Store) Remove(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.Path == path {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, s.saveLocked()
		}
	}
	return false, nil
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return s.saveLocked()
}

// RelativeTime renders the age of t as "just now", "5m ago", "3h ago",
// "2d ago" or "1w ago".
func RelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return fmt.Sprintf("%dw ago", int(d/(7*24*time.Hour)))
	}
}
