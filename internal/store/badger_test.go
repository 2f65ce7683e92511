package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

func newTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	st, err := NewBadgerStore(BadgerConfig{InMemory: true}, DefaultRetention())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestBadgerStore_RawRoundTrip(t *testing.T) {
	st := newTestBadger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i, temp := range []float64{20, 21, 22} {
		require.NoError(t, st.AppendRaw(ctx, telemetry.Reading{
			LocationID: "loc1",
			Timestamp:  base.Add(time.Duration(i) * 10 * time.Minute),
			Metrics:    map[string]float64{"temperature_c": temp},
			Source:     "openmeteo",
			ReceivedAt: base,
		}))
	}

	got, err := st.QueryRaw(ctx, "loc1", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}

	latest, err := st.LatestRaw(ctx, "loc1")
	require.NoError(t, err)
	require.Equal(t, 22.0, latest.Metrics["temperature_c"])

	// Other locations do not leak into the prefix scan.
	other, err := st.QueryRaw(ctx, "loc2", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestBadgerStore_AggregateUpsertIsIdempotent(t *testing.T) {
	st := newTestBadger(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	agg := telemetry.Aggregate{
		LocationID:  "loc1",
		Period:      telemetry.PeriodHour,
		PeriodStart: start,
		PeriodEnd:   start.Add(time.Hour),
		Metrics:     map[string]telemetry.MetricStats{"temperature_c": {Min: 20, Max: 22, Avg: 21, Count: 3}},
		ComputedAt:  time.Now().UTC(),
		SourceCount: 1,
	}
	require.NoError(t, st.UpsertAggregate(ctx, agg))
	require.NoError(t, st.UpsertAggregate(ctx, agg))

	got, err := st.QueryAggregates(ctx, "loc1", telemetry.PeriodHour, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, agg.Metrics, got[0].Metrics)

	// A different period type lives in its own collection.
	_, err = st.LatestAggregate(ctx, "loc1", telemetry.PeriodDay)
	require.ErrorIs(t, err, telemetry.ErrNotFound)
}

func TestBadgerStore_ForecastFullReplace(t *testing.T) {
	st := newTestBadger(t)
	ctx := context.Background()

	gen := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertForecast(ctx, telemetry.Forecast{
		LocationID:  "loc1",
		GeneratedAt: gen,
		ValidUntil:  gen.Add(telemetry.ForecastValidity),
		Points:      []telemetry.ForecastPoint{{Timestamp: gen.Add(time.Hour)}},
	}))
	require.NoError(t, st.UpsertForecast(ctx, telemetry.Forecast{
		LocationID:  "loc1",
		GeneratedAt: gen.Add(6 * time.Hour),
		ValidUntil:  gen.Add(6*time.Hour + telemetry.ForecastValidity),
		Points:      []telemetry.ForecastPoint{{Timestamp: gen.Add(7 * time.Hour)}},
	}))

	got, err := st.Forecast(ctx, "loc1")
	require.NoError(t, err)
	require.Equal(t, gen.Add(6*time.Hour), got.GeneratedAt)
	require.Len(t, got.Points, 1)
}
