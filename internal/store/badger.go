package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// Key layout. Timestamps are zero-padded hex nanos so lexicographic key
// order is chronological order within a prefix.
//
//	raw/<location>/<timestamp>/<source>  -> Reading   (TTL: retention.Raw)
//	agg/<period>/<location>/<start>      -> Aggregate (TTL per period)
//	fc/<location>                        -> Forecast  (no TTL)
const (
	rawPrefix      = "raw/"
	aggPrefix      = "agg/"
	forecastPrefix = "fc/"
)

// BadgerStore is the persistent telemetry.Store. Retention is delegated to
// BadgerDB entry TTLs, so expiry needs no background sweeper of our own.
type BadgerStore struct {
	db        *badger.DB
	retention Retention
}

// BadgerConfig holds the storage backend settings.
type BadgerConfig struct {
	// Path to the database directory.
	Path string

	// InMemory mode, for tests.
	InMemory bool
}

// NewBadgerStore opens (or creates) the database at cfg.Path.
func NewBadgerStore(cfg BadgerConfig, retention Retention) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	// The working set is tiny compared to badger's server-grade defaults.
	opts = opts.
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, retention: retention}, nil
}

func hexNanos(t time.Time) string {
	return fmt.Sprintf("%016x", t.UTC().UnixNano())
}

func rawKey(locationID string, ts time.Time, source string) []byte {
	return []byte(rawPrefix + locationID + "/" + hexNanos(ts) + "/" + source)
}

func aggKey(locationID string, period telemetry.PeriodType, start time.Time) []byte {
	return []byte(aggPrefix + string(period) + "/" + locationID + "/" + hexNanos(start))
}

func forecastKey(locationID string) []byte {
	return []byte(forecastPrefix + locationID)
}

func (s *BadgerStore) AppendRaw(ctx context.Context, r telemetry.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(rawKey(r.LocationID, r.Timestamp, r.Source), val)
		if s.retention.Raw > 0 {
			entry = entry.WithTTL(s.retention.Raw)
		}
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) QueryRaw(ctx context.Context, locationID string, from, to time.Time) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(rawPrefix + locationID + "/")
	seek := []byte(rawPrefix + locationID + "/" + hexNanos(from))

	var result []telemetry.Reading
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var r telemetry.Reading
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &r)
			}); err != nil {
				return fmt.Errorf("decode reading: %w", err)
			}
			if !r.Timestamp.Before(to) {
				break
			}
			result = append(result, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerStore) LatestRaw(ctx context.Context, locationID string) (telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, err
	}
	prefix := []byte(rawPrefix + locationID + "/")
	// Seek just past the prefix range, then walk backwards.
	seek := append(append([]byte{}, prefix...), 0xff)

	var latest telemetry.Reading
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &latest)
		})
	})
	if err != nil {
		return telemetry.Reading{}, err
	}
	if !found {
		return telemetry.Reading{}, telemetry.ErrNotFound
	}
	return latest, nil
}

func (s *BadgerStore) UpsertAggregate(ctx context.Context, a telemetry.Aggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode aggregate: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(aggKey(a.LocationID, a.Period, a.PeriodStart), val)
		if ttl := s.retention.aggregateTTL(a.Period); ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) QueryAggregates(ctx context.Context, locationID string, period telemetry.PeriodType, from, to time.Time) ([]telemetry.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(aggPrefix + string(period) + "/" + locationID + "/")
	seek := []byte(aggPrefix + string(period) + "/" + locationID + "/" + hexNanos(from))

	var result []telemetry.Aggregate
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var a telemetry.Aggregate
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &a)
			}); err != nil {
				return fmt.Errorf("decode aggregate: %w", err)
			}
			if !a.PeriodStart.Before(to) {
				break
			}
			result = append(result, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerStore) LatestAggregate(ctx context.Context, locationID string, period telemetry.PeriodType) (telemetry.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Aggregate{}, err
	}
	prefix := []byte(aggPrefix + string(period) + "/" + locationID + "/")
	seek := append(append([]byte{}, prefix...), 0xff)

	var latest telemetry.Aggregate
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &latest)
		})
	})
	if err != nil {
		return telemetry.Aggregate{}, err
	}
	if !found {
		return telemetry.Aggregate{}, telemetry.ErrNotFound
	}
	return latest, nil
}

func (s *BadgerStore) UpsertForecast(ctx context.Context, f telemetry.Forecast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode forecast: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(forecastKey(f.LocationID), val)
	})
}

func (s *BadgerStore) Forecast(ctx context.Context, locationID string) (telemetry.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Forecast{}, err
	}
	var f telemetry.Forecast
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(forecastKey(locationID))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &f)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return telemetry.Forecast{}, telemetry.ErrNotFound
	}
	if err != nil {
		return telemetry.Forecast{}, err
	}
	return f, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
