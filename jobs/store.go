package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/use-agent/topdf/models"
)

// Store remembers recent jobs, bounded in both count and age. Evicting a
// job that has not finished cancels it. It is safe for concurrent use.
type Store struct {
	lru *expirable.LRU[string, *Job]
}

// NewStore creates a Store holding at most maxEntries jobs for ttl each.
func NewStore(maxEntries int, ttl time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	onEvict := func(id string, j *Job) {
		if !models.IsTerminal(j.Status()) {
			slog.Warn("evicting unfinished job", "job_id", id)
			_ = j.Cancel()
		}
	}
	return &Store{lru: expirable.NewLRU[string, *Job](maxEntries, onEvict, ttl)}
}

// Create registers a new queued job for url.
func (s *Store) Create(url string) *Job {
	j := newJob("conv-"+randomID(), url)
	s.lru.Add(j.id, j)
	return j
}

// Get looks a job up by ID.
func (s *Store) Get(id string) (*Job, bool) {
	return s.lru.Get(id)
}

// Active counts jobs that have not finished.
func (s *Store) Active() int {
	n := 0
	for _, j := range s.lru.Values() {
		if !models.IsTerminal(j.Status()) {
			n++
		}
	}
	return n
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
