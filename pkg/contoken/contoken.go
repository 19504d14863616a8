// Package contoken implements the in-memory continuation-token store
// backing the two-phase ListObjectsV2 pagination model: a full
// prefix-filtered scan is snapshotted once, then paged out of memory
// across requests under an opaque token rather than re-querying SQLite
// for each page.
package contoken

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/s3lite/s3lite/pkg/bucket"
	"github.com/s3lite/s3lite/pkg/metrics"
)

// TTL is the idle duration after which an unconsumed token is swept.
const TTL = 120 * time.Second

// Entry is one outstanding continuation token: the ordered suffix of rows
// still to be delivered, and the instant it was last touched.
type Entry struct {
	Token        string
	LastModified time.Time
	Remaining    []bucket.ListEntry
}

// Store is a guarded map from opaque token to Entry. Mutated only by
// list-objects handlers (Put/Take) and the background sweeper
// (Sweep). The critical section is always O(1) plus a slice re-slice, per
// the concurrency model's "simple exclusive mutex" design.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	metrics metrics.S3Metrics
}

// New creates an empty continuation-token store.
func New(m metrics.S3Metrics) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		metrics: m,
	}
}

// Put stores remaining under a freshly minted UUIDv4 token and returns it.
func (s *Store) Put(remaining []bucket.ListEntry) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.entries[token] = &Entry{
		Token:        token,
		LastModified: time.Now(),
		Remaining:    remaining,
	}
	n := len(s.entries)
	s.mu.Unlock()
	metrics.RecordTokenStoreSize(s.metrics, n)
	return token
}

// Take consumes up to maxKeys rows from the entry stored under token. If
// the entry is fully drained it is deleted and truncated is false, so no
// successor token exists; otherwise it is kept with LastModified bumped to
// now and truncated is true, the successor token being token itself.
//
// Take reports found=false if token is unknown or already expired.
func (s *Store) Take(token string, maxKeys int) (page []bucket.ListEntry, truncated bool, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok {
		return nil, false, false
	}

	if maxKeys >= len(e.Remaining) {
		page = e.Remaining
		delete(s.entries, token)
		metrics.RecordTokenStoreSize(s.metrics, len(s.entries))
		return page, false, true
	}

	page = e.Remaining[:maxKeys]
	e.Remaining = e.Remaining[maxKeys:]
	e.LastModified = time.Now()
	return page, true, true
}

// Sweep drops every entry idle for at least TTL. Intended to be called
// periodically by the background maintainer.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for token, e := range s.entries {
		if now.Sub(e.LastModified) >= TTL {
			delete(s.entries, token)
			dropped++
		}
	}
	metrics.RecordTokenStoreSize(s.metrics, len(s.entries))
	return dropped
}

// Len reports the number of live tokens. Used by the maintainer and tests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
