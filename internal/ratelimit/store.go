package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps state in process. Suitable for a single instance and
// for tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn func(*State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = memoryEntry{}
	}

	fn(&e.state)
	e.expiresAt = now.Add(ttl)
	m.entries[key] = e

	// opportunistic cleanup keeps the map bounded by active clients
	if len(m.entries) > 1024 {
		for k, v := range m.entries {
			if now.After(v.expiresAt) {
				delete(m.entries, k)
			}
		}
	}
	return nil
}
