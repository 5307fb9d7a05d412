package journal

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in memory. This is the default backend for
// test runs; entries vanish with the proxy instance.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
}

// NewMemoryStore creates a memory store. A limit of 0 means unbounded;
// otherwise the oldest entries are dropped once the limit is exceeded.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if m.limit > 0 && len(m.entries) > m.limit {
		m.entries = m.entries[len(m.entries)-m.limit:]
	}
	return nil
}

func (m *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
