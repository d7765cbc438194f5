// Package store keeps completion records for the stats command and /healthz.
//
// DESIGN: Two implementations of one Store interface:
//   - MemoryStore: per-worker, TTL-bounded window of recent events (default)
//   - SQLiteStore: shared file written by every worker (monitoring.sqlite_path)
//
// Both keep the redacted JSON payload next to the indexed columns so the raw
// event can be read back with gjson.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Rushs321/suko/internal/monitoring"
)

// DefaultRetention is how long MemoryStore keeps events.
const DefaultRetention = time.Hour

// Store persists completion events.
type Store interface {
	// Save records one event with its redacted JSON payload.
	Save(ctx context.Context, ev *monitoring.CompletionEvent, payload []byte) error

	// Summary aggregates events recorded at or after since.
	Summary(ctx context.Context, since time.Time) (*Summary, error)

	// Recent returns up to n payloads, newest first.
	Recent(ctx context.Context, n int) ([]json.RawMessage, error)

	// Close releases resources.
	Close() error
}

// MemoryStore is a simple in-memory implementation of Store.
type MemoryStore struct {
	entries   []entry
	mu        sync.RWMutex
	retention time.Duration
	stopChan  chan struct{}
	stopped   bool
}

type entry struct {
	at             time.Time
	outcome        string
	format         string
	originalSize   int
	compressedSize int
	bytesSaved     int
	payload        json.RawMessage
}

// NewMemoryStore creates a store that forgets events older than retention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &MemoryStore{
		retention: retention,
		stopChan:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup()

	return s
}

// Save stores an event.
func (s *MemoryStore) Save(_ context.Context, ev *monitoring.CompletionEvent, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	s.entries = append(s.entries, entry{
		at:             at,
		outcome:        string(ev.Outcome),
		format:         ev.Format,
		originalSize:   ev.OriginalSize,
		compressedSize: ev.CompressedSize,
		bytesSaved:     ev.BytesSaved,
		payload:        append(json.RawMessage(nil), payload...),
	})
	return nil
}

// Summary aggregates unexpired events recorded at or after since.
func (s *MemoryStore) Summary(_ context.Context, since time.Time) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-s.retention)
	sum := NewSummary()
	for _, e := range s.entries {
		if e.at.Before(since) || e.at.Before(cutoff) {
			continue
		}
		sum.Add(e.outcome, e.format, e.originalSize, e.compressedSize, e.bytesSaved)
	}
	return sum, nil
}

// Recent returns up to n payloads, newest first.
func (s *MemoryStore) Recent(_ context.Context, n int) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]json.RawMessage, 0, min(n, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i].payload)
	}
	return out, nil
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.entries = nil
	}
	return nil
}

// cleanup periodically removes expired entries.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(min(s.retention, 5*time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.prune(time.Now().Add(-s.retention))
		}
	}
}

func (s *MemoryStore) prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	// Entries are appended in time order.
	i := 0
	for i < len(s.entries) && s.entries[i].at.Before(cutoff) {
		i++
	}
	s.entries = append(s.entries[:0], s.entries[i:]...)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
