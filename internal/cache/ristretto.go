package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoBackend implements Backend over an in-process ristretto cache.
// Ristretto has no key iteration, so a side index of live keys is kept for
// pattern deletes; the index may briefly contain keys ristretto has already
// evicted, which makes a pattern delete at worst a few redundant Dels.
type RistrettoBackend struct {
	cache *ristretto.Cache[string, []byte]

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewRistrettoBackend sizes the cache for the pipeline's small working set
// (one entry per location plus summaries).
func NewRistrettoBackend() (*RistrettoBackend, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoBackend{
		cache: c,
		keys:  make(map[string]struct{}),
	}, nil
}

func (b *RistrettoBackend) Get(key string) ([]byte, bool, error) {
	val, ok := b.cache.Get(key)
	return val, ok, nil
}

func (b *RistrettoBackend) Set(key string, value []byte, ttl time.Duration) error {
	b.cache.SetWithTTL(key, value, int64(len(value)), ttl)

	b.mu.Lock()
	b.keys[key] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *RistrettoBackend) Delete(pattern string) error {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		b.mu.Lock()
		for key := range b.keys {
			if strings.HasPrefix(key, prefix) {
				b.cache.Del(key)
				delete(b.keys, key)
			}
		}
		b.mu.Unlock()
		return nil
	}

	b.cache.Del(pattern)
	b.mu.Lock()
	delete(b.keys, pattern)
	b.mu.Unlock()
	return nil
}

func (b *RistrettoBackend) Close() {
	b.cache.Close()
}
