package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// MemoryStore is a concurrency-safe in-memory implementation of
// telemetry.Store. Expiry is enforced lazily on access, against the same
// per-collection TTLs the persistent store uses.
type MemoryStore struct {
	mu sync.RWMutex

	raw        map[string][]telemetry.Reading // location id -> ascending by timestamp
	aggregates map[string]telemetry.Aggregate // natural key -> record
	forecasts  map[string]telemetry.Forecast  // location id -> document

	retention Retention
	now       func() time.Time
}

// NewMemoryStore creates an empty store with the given retention.
func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{
		raw:        make(map[string][]telemetry.Reading),
		aggregates: make(map[string]telemetry.Aggregate),
		forecasts:  make(map[string]telemetry.Forecast),
		retention:  retention,
		now:        time.Now,
	}
}

func aggregateKey(locationID string, period telemetry.PeriodType, start time.Time) string {
	return fmt.Sprintf("%s|%s|%d", locationID, period, start.UTC().Unix())
}

func (s *MemoryStore) AppendRaw(_ context.Context, r telemetry.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := append(s.raw[r.LocationID], r)

	// Keep ascending timestamp order; out-of-order arrivals are rare but
	// possible when adapters disagree about the observation time.
	if n := len(readings); n > 1 && readings[n-1].Timestamp.Before(readings[n-2].Timestamp) {
		sort.Slice(readings, func(i, j int) bool {
			return readings[i].Timestamp.Before(readings[j].Timestamp)
		})
	}

	s.raw[r.LocationID] = s.pruneRaw(readings)
	return nil
}

// pruneRaw drops readings past the raw retention window. Caller holds the lock.
func (s *MemoryStore) pruneRaw(readings []telemetry.Reading) []telemetry.Reading {
	if s.retention.Raw <= 0 {
		return readings
	}
	cutoff := s.now().Add(-s.retention.Raw)
	i := 0
	for ; i < len(readings); i++ {
		if !readings[i].Timestamp.Before(cutoff) {
			break
		}
	}
	return readings[i:]
}

func (s *MemoryStore) QueryRaw(_ context.Context, locationID string, from, to time.Time) ([]telemetry.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := s.pruneRaw(s.raw[locationID])
	s.raw[locationID] = readings

	var result []telemetry.Reading
	for _, r := range readings {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) LatestRaw(_ context.Context, locationID string) (telemetry.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readings := s.pruneRaw(s.raw[locationID])
	s.raw[locationID] = readings

	if len(readings) == 0 {
		return telemetry.Reading{}, telemetry.ErrNotFound
	}
	return readings[len(readings)-1], nil
}

func (s *MemoryStore) UpsertAggregate(_ context.Context, a telemetry.Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aggregates[aggregateKey(a.LocationID, a.Period, a.PeriodStart)] = a
	return nil
}

func (s *MemoryStore) QueryAggregates(_ context.Context, locationID string, period telemetry.PeriodType, from, to time.Time) ([]telemetry.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []telemetry.Aggregate
	for _, a := range s.aggregates {
		if a.LocationID != locationID || a.Period != period || s.aggregateExpired(a) {
			continue
		}
		if !a.PeriodStart.Before(from) && a.PeriodStart.Before(to) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart.Before(result[j].PeriodStart)
	})
	return result, nil
}

func (s *MemoryStore) LatestAggregate(_ context.Context, locationID string, period telemetry.PeriodType) (telemetry.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest telemetry.Aggregate
	found := false
	for _, a := range s.aggregates {
		if a.LocationID != locationID || a.Period != period || s.aggregateExpired(a) {
			continue
		}
		if !found || a.PeriodStart.After(latest.PeriodStart) {
			latest = a
			found = true
		}
	}
	if !found {
		return telemetry.Aggregate{}, telemetry.ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) aggregateExpired(a telemetry.Aggregate) bool {
	ttl := s.retention.aggregateTTL(a.Period)
	return ttl > 0 && s.now().After(a.ComputedAt.Add(ttl))
}

func (s *MemoryStore) UpsertForecast(_ context.Context, f telemetry.Forecast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forecasts[f.LocationID] = f
	return nil
}

func (s *MemoryStore) Forecast(_ context.Context, locationID string) (telemetry.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.forecasts[locationID]
	if !ok {
		return telemetry.Forecast{}, telemetry.ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) Close() error { return nil }
