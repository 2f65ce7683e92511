// Package cache implements the read-through cache in front of the telemetry
// stores. The cache is a strict optimization layer: every backend failure
// degrades silently to the compute path and is never surfaced to callers.
package cache

import (
	"context"
	"log"
	"time"
)

// Backend is the cache capability: get, set with TTL, and delete by pattern.
// A pattern is either an exact key or a prefix followed by '*'.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(pattern string) error
	Close()
}

// Key namespaces. All pipeline entries live under "weather:" so a single
// pattern delete can clear the whole namespace.
const (
	realtimePrefix = "weather:realtime:"
	forecastPrefix = "weather:forecast:"
	summaryKey     = "weather:realtime:summary"
)

// RealtimeKey returns the cache key for a location's realtime view.
func RealtimeKey(locationID string) string { return realtimePrefix + locationID }

// ForecastKey returns the cache key for a location's forecast.
func ForecastKey(locationID string) string { return forecastPrefix + locationID }

// SummaryKey returns the cache key for the fleet summary. The active-only and
// all-locations variants are cached separately.
func SummaryKey(activeOnly bool) string {
	if activeOnly {
		return summaryKey
	}
	return summaryKey + ":all"
}

// Cache is the read-through layer over a Backend.
type Cache struct {
	backend Backend
}

func New(backend Backend) *Cache {
	return &Cache{backend: backend}
}

// GetOrCompute returns the cached value for key, or calls compute, stores the
// result best-effort, and returns it. Backend errors on either side are
// logged and swallowed; the caller always gets either a value or compute's
// error.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if c.backend != nil {
		val, ok, err := c.backend.Get(key)
		if err != nil {
			log.Printf("cache: get %s failed, falling through to store: %v", key, err)
		} else if ok {
			return val, nil
		}
	}

	val, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if c.backend != nil {
		if err := c.backend.Set(key, val, ttl); err != nil {
			log.Printf("cache: set %s failed: %v", key, err)
		}
	}
	return val, nil
}

// InvalidateLocation clears every entry derived from one location, plus the
// fleet summaries that embed it.
func (c *Cache) InvalidateLocation(locationID string) {
	c.delete(RealtimeKey(locationID))
	c.delete(ForecastKey(locationID))
	c.delete(summaryKey + "*")
}

// InvalidateAll clears the whole telemetry namespace.
func (c *Cache) InvalidateAll() {
	c.delete("weather:*")
}

func (c *Cache) delete(pattern string) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Delete(pattern); err != nil {
		log.Printf("cache: delete %s failed: %v", pattern, err)
	}
}
