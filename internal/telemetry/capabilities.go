package telemetry

import (
	"context"
	"time"
)

// Adapter abstracts one external telemetry provider. Fetch returns a single
// normalized Reading or a *FetchError; it never retries internally and never
// touches storage.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, loc Location) (Reading, error)
}

// ForecastAdapter is implemented by adapters that can also produce forecast
// points. Points are ordered by timestamp ascending.
type ForecastAdapter interface {
	Adapter
	FetchForecast(ctx context.Context, loc Location, days int) ([]ForecastPoint, error)
}

// Store is the persistence capability the pipeline writes through. Raw
// readings and hourly/daily aggregates live in TTL-bounded collections;
// monthly aggregates are kept indefinitely. All upserts are keyed by natural
// identity and safe under concurrent callers.
type Store interface {
	// AppendRaw stores one reading. Duplicates from retried fetches are
	// tolerated; the aggregation tier deduplicates by (source, timestamp).
	AppendRaw(ctx context.Context, r Reading) error

	// QueryRaw returns readings for the location in [from, to), ascending
	// by timestamp.
	QueryRaw(ctx context.Context, locationID string, from, to time.Time) ([]Reading, error)

	// LatestRaw returns the most recent reading for the location, or
	// ErrNotFound.
	LatestRaw(ctx context.Context, locationID string) (Reading, error)

	// UpsertAggregate replaces the aggregate for its natural key whole.
	UpsertAggregate(ctx context.Context, a Aggregate) error

	// QueryAggregates returns aggregates of one period type for the
	// location with PeriodStart in [from, to), ascending.
	QueryAggregates(ctx context.Context, locationID string, period PeriodType, from, to time.Time) ([]Aggregate, error)

	// LatestAggregate returns the newest aggregate of the period type for
	// the location, or ErrNotFound.
	LatestAggregate(ctx context.Context, locationID string, period PeriodType) (Aggregate, error)

	// UpsertForecast fully replaces the location's forecast document.
	UpsertForecast(ctx context.Context, f Forecast) error

	// Forecast returns the location's forecast document, or ErrNotFound.
	Forecast(ctx context.Context, locationID string) (Forecast, error)

	Close() error
}

// LocationSource is the read side of the location registry the pipeline
// consumes.
type LocationSource interface {
	Get(id string) (Location, error)
	List(activeOnly bool) []Location
}
