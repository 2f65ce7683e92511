package cache

import (
	"strings"
	"sync"
	"time"
)

// MemoryBackend is a plain map-backed Backend used in tests and as a
// fallback when no real cache is configured.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable in tests to exercise TTL expiry without sleeping.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (b *MemoryBackend) Get(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && b.now().After(e.expiresAt) {
		delete(b.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (b *MemoryBackend) Set(key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.entries[key] = e
	return nil
}

func (b *MemoryBackend) Delete(pattern string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		for key := range b.entries {
			if strings.HasPrefix(key, prefix) {
				delete(b.entries, key)
			}
		}
		return nil
	}
	delete(b.entries, pattern)
	return nil
}

func (b *MemoryBackend) Close() {}

// Len reports the number of live entries; used by tests.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
