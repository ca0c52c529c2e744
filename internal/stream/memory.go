package stream

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is an in-process Registry used when no database is configured and
// in tests. Expired entries are reaped lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is a test hook.
	now func() time.Time
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Put stores the payload under id with the given TTL.
func (m *Memory) Put(_ context.Context, id string, payload []byte, ttl time.Duration) error {
	buf := make([]byte, len(payload))
	copy(buf, payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[keyPrefix+id] = memoryEntry{
		payload:   buf,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

// Get returns the payload for id, deleting and reporting ErrNotFound for
// expired entries.
func (m *Memory) Get(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[keyPrefix+id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, keyPrefix+id)
		return nil, ErrNotFound
	}

	buf := make([]byte, len(entry.payload))
	copy(buf, entry.payload)
	return buf, nil
}

// Delete removes the entry for id.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, keyPrefix+id)
	return nil
}
