// Package aggregate implements the tiered rollup engine: raw readings are
// reduced into hourly aggregates, hourly into daily, daily into monthly.
// Each rollup is a pure computation over the tier directly below it followed
// by a single upsert keyed by (location, period, period start), so re-running
// a bucket or computing it concurrently is always safe.
package aggregate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// Engine computes rollups against a telemetry store.
type Engine struct {
	store telemetry.Store
}

func New(store telemetry.Store) *Engine {
	return &Engine{store: store}
}

// HourlyRollup reduces the raw readings of one hour into a single hourly
// aggregate. A non-aligned hourStart is normalized to the top of its hour.
// An hour with no readings is skipped without error and without writing an
// empty aggregate. Readings duplicated by retried fetches are suppressed by
// their (source, timestamp) natural key before statistics are computed.
func (e *Engine) HourlyRollup(ctx context.Context, locationID string, hourStart time.Time) error {
	hourStart = telemetry.HourStart(hourStart)
	hourEnd := hourStart.Add(time.Hour)

	readings, err := e.store.QueryRaw(ctx, locationID, hourStart, hourEnd)
	if err != nil {
		return fmt.Errorf("hourly rollup %s %s: query raw: %w", locationID, hourStart.Format(time.RFC3339), err)
	}
	readings = dedupeReadings(readings)
	if len(readings) == 0 {
		return nil
	}

	type accum struct {
		min, max, sum float64
		count         int
	}
	stats := make(map[string]*accum)
	sources := make(map[string]struct{})

	for _, r := range readings {
		sources[r.Source] = struct{}{}
		for name, v := range r.Metrics {
			a, ok := stats[name]
			if !ok {
				stats[name] = &accum{min: v, max: v, sum: v, count: 1}
				continue
			}
			if v < a.min {
				a.min = v
			}
			if v > a.max {
				a.max = v
			}
			a.sum += v
			a.count++
		}
	}

	metrics := make(map[string]telemetry.MetricStats, len(stats))
	for name, a := range stats {
		metrics[name] = telemetry.MetricStats{
			Min:   a.min,
			Max:   a.max,
			Avg:   a.sum / float64(a.count),
			Count: a.count,
		}
	}

	return e.upsert(ctx, telemetry.Aggregate{
		LocationID:  locationID,
		Period:      telemetry.PeriodHour,
		PeriodStart: hourStart,
		PeriodEnd:   hourEnd,
		Metrics:     metrics,
		ComputedAt:  time.Now().UTC(),
		SourceCount: len(sources),
	})
}

// DailyRollup recombines one day's hourly aggregates into a daily aggregate.
// It never touches raw data, so its cost is bounded by 24 records regardless
// of collection frequency.
func (e *Engine) DailyRollup(ctx context.Context, locationID string, dayStart time.Time) error {
	dayStart = telemetry.DayStart(dayStart)
	dayEnd := dayStart.AddDate(0, 0, 1)

	hours, err := e.store.QueryAggregates(ctx, locationID, telemetry.PeriodHour, dayStart, dayEnd)
	if err != nil {
		return fmt.Errorf("daily rollup %s %s: query hourly: %w", locationID, dayStart.Format("2006-01-02"), err)
	}
	if len(hours) == 0 {
		return nil
	}

	return e.upsert(ctx, telemetry.Aggregate{
		LocationID:  locationID,
		Period:      telemetry.PeriodDay,
		PeriodStart: dayStart,
		PeriodEnd:   dayEnd,
		Metrics:     recombine(hours),
		ComputedAt:  time.Now().UTC(),
		SourceCount: maxSourceCount(hours),
	})
}

// MonthlyRollup recombines one month's daily aggregates into a monthly
// aggregate. Monthly aggregates have no TTL and form the long-term record.
func (e *Engine) MonthlyRollup(ctx context.Context, locationID string, year int, month time.Month) error {
	monthStart := telemetry.MonthStart(year, month)
	monthEnd := monthStart.AddDate(0, 1, 0)

	days, err := e.store.QueryAggregates(ctx, locationID, telemetry.PeriodDay, monthStart, monthEnd)
	if err != nil {
		return fmt.Errorf("monthly rollup %s %d-%02d: query daily: %w", locationID, year, month, err)
	}
	if len(days) == 0 {
		return nil
	}

	return e.upsert(ctx, telemetry.Aggregate{
		LocationID:  locationID,
		Period:      telemetry.PeriodMonth,
		PeriodStart: monthStart,
		PeriodEnd:   monthEnd,
		Metrics:     recombine(days),
		ComputedAt:  time.Now().UTC(),
		SourceCount: maxSourceCount(days),
	})
}

func (e *Engine) upsert(ctx context.Context, a telemetry.Aggregate) error {
	if err := e.store.UpsertAggregate(ctx, a); err != nil {
		return fmt.Errorf("%s rollup %s: upsert: %w", a.Period, a.LocationID, err)
	}
	return nil
}

// RollupHourForAll runs the hourly rollup for every given location,
// isolating per-location failures.
func (e *Engine) RollupHourForAll(ctx context.Context, locs []telemetry.Location, hourStart time.Time) error {
	return e.rollupAll(ctx, locs, "hourly", func(ctx context.Context, locationID string) error {
		return e.HourlyRollup(ctx, locationID, hourStart)
	})
}

// RollupDayForAll runs the daily rollup for every given location.
func (e *Engine) RollupDayForAll(ctx context.Context, locs []telemetry.Location, dayStart time.Time) error {
	return e.rollupAll(ctx, locs, "daily", func(ctx context.Context, locationID string) error {
		return e.DailyRollup(ctx, locationID, dayStart)
	})
}

// RollupMonthForAll runs the monthly rollup for every given location.
func (e *Engine) RollupMonthForAll(ctx context.Context, locs []telemetry.Location, year int, month time.Month) error {
	return e.rollupAll(ctx, locs, "monthly", func(ctx context.Context, locationID string) error {
		return e.MonthlyRollup(ctx, locationID, year, month)
	})
}

// rollupAll applies fn per location. A failing location is logged and
// skipped; the batch only reports an error when every location failed, which
// indicates a systemic store problem worth the scheduler's retry policy.
func (e *Engine) rollupAll(ctx context.Context, locs []telemetry.Location, kind string, fn func(ctx context.Context, locationID string) error) error {
	if len(locs) == 0 {
		return nil
	}

	var failed int
	var lastErr error
	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if telemetry.SoftDeadlineExceeded(ctx) {
			log.Printf("aggregate: %s rollup soft deadline exceeded; returning with partial results", kind)
			return nil
		}
		if err := fn(ctx, loc.ID); err != nil {
			failed++
			lastErr = err
			log.Printf("aggregate: %s rollup failed for %s (%s): %v", kind, loc.Name, loc.ID, err)
		}
	}

	if failed == len(locs) {
		return fmt.Errorf("%s rollup failed for all %d locations: %w", kind, failed, lastErr)
	}
	return nil
}

// dedupeReadings drops readings sharing a (source, timestamp) natural key,
// keeping the first occurrence. The input is timestamp-ordered, so the
// output stays ordered.
func dedupeReadings(readings []telemetry.Reading) []telemetry.Reading {
	if len(readings) < 2 {
		return readings
	}
	seen := make(map[string]struct{}, len(readings))
	out := readings[:0]
	for _, r := range readings {
		key := r.Source + "@" + r.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// recombine folds lower-tier aggregates into one tier-up statistics map.
// Averages are weighted by each bucket's count so sparse buckets do not bias
// the result.
func recombine(aggs []telemetry.Aggregate) map[string]telemetry.MetricStats {
	type accum struct {
		min, max, weightedSum float64
		count                 int
	}
	stats := make(map[string]*accum)

	for _, agg := range aggs {
		for name, m := range agg.Metrics {
			a, ok := stats[name]
			if !ok {
				stats[name] = &accum{
					min:         m.Min,
					max:         m.Max,
					weightedSum: m.Avg * float64(m.Count),
					count:       m.Count,
				}
				continue
			}
			if m.Min < a.min {
				a.min = m.Min
			}
			if m.Max > a.max {
				a.max = m.Max
			}
			a.weightedSum += m.Avg * float64(m.Count)
			a.count += m.Count
		}
	}

	metrics := make(map[string]telemetry.MetricStats, len(stats))
	for name, a := range stats {
		if a.count == 0 {
			continue
		}
		metrics[name] = telemetry.MetricStats{
			Min:   a.min,
			Max:   a.max,
			Avg:   a.weightedSum / float64(a.count),
			Count: a.count,
		}
	}
	return metrics
}

// maxSourceCount reports the peak distinct-source count across buckets.
// Summing would double-count the same provider appearing in every bucket.
func maxSourceCount(aggs []telemetry.Aggregate) int {
	max := 0
	for _, a := range aggs {
		if a.SourceCount > max {
			max = a.SourceCount
		}
	}
	return max
}
