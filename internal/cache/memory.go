package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
)

// MemoryCache is a mutex-guarded in-process Cache. Default for tests and
// for runs where persistence across invocations is not wanted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[identity.Key]Entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *MemoryCache {
	return &MemoryCache{
		entries: make(map[identity.Key]Entry),
		now:     time.Now,
	}
}

// WithNow overrides the clock, for expiry tests.
func (m *MemoryCache) WithNow(now func() time.Time) *MemoryCache {
	m.now = now
	return m
}

func (m *MemoryCache) Lookup(_ context.Context, key identity.Key) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !e.ExpiresAt.After(m.now()) {
		return nil, nil
	}
	out := e
	return &out, nil
}

func (m *MemoryCache) Store(_ context.Context, key identity.Key, payload model.EnrichmentPayload, provider string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	m.entries[key] = Entry{
		Key:       key,
		Payload:   payload,
		Provider:  provider,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

func (m *MemoryCache) Invalidate(_ context.Context, key identity.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) PurgeExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			purged++
		}
	}
	return purged, nil
}

func (m *MemoryCache) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Total: len(m.entries)}
	now := m.now()
	for _, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			s.Expired++
		}
	}
	return s, nil
}

func (m *MemoryCache) Close() error { return nil }
