package memory

import (
	"context"
	"sync"

	audit "moflow/pkg/platform/audit"
)

// InMemoryStore keeps a session's audit log in process memory. It is the
// default store: the log lives exactly as long as the session.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = uint64(len(s.entries)) + 1
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, n int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return []audit.Entry{}, nil
	}
	start := len(s.entries) - n
	if start < 0 {
		start = 0
	}
	return append([]audit.Entry{}, s.entries[start:]...), nil
}

func (s *InMemoryStore) All(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...), nil
}
