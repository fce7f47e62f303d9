package transcript

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemStore keeps the most recent entries in memory. Once capacity is reached
// the oldest entry is dropped for each new one.
type MemStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewMemStore returns a MemStore holding at most capacity entries. A
// non-positive capacity selects 1000.
func NewMemStore(capacity int) *MemStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemStore{capacity: capacity}
}

// Append implements [Store].
func (s *MemStore) Append(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Translations = maps.Clone(e.Translations)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements [Store].
func (s *MemStore) Recent(_ context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Entry{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if q.SessionID != "" && e.SessionID != q.SessionID {
			continue
		}
		if q.Source != "" && e.Source != q.Source {
			continue
		}
		e.Translations = maps.Clone(e.Translations)
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements [Store]. It is a no-op.
func (s *MemStore) Close() error { return nil }

var _ Store = (*MemStore)(nil)
