package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHourStart(t *testing.T) {
	in := time.Date(2026, 3, 14, 10, 17, 42, 999, time.UTC)
	require.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), HourStart(in))

	// Non-UTC inputs are normalized to UTC buckets.
	loc := time.FixedZone("UTC+2", 2*3600)
	in = time.Date(2026, 3, 14, 1, 30, 0, 0, loc) // 23:30 UTC the day before
	require.Equal(t, time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC), HourStart(in))
}

func TestDayStart(t *testing.T) {
	in := time.Date(2026, 3, 14, 23, 59, 59, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), DayStart(in))
}

func TestPreviousMonth(t *testing.T) {
	cases := []struct {
		now       time.Time
		wantYear  int
		wantMonth time.Month
	}{
		{time.Date(2026, 3, 1, 0, 30, 0, 0, time.UTC), 2026, time.February},
		{time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC), 2026, time.February},
		{time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), 2025, time.December},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2024, time.February}, // leap February
	}
	for _, tc := range cases {
		year, month := PreviousMonth(tc.now)
		require.Equal(t, tc.wantYear, year, "now=%s", tc.now)
		require.Equal(t, tc.wantMonth, month, "now=%s", tc.now)
	}
}

func TestPeriodEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, start.Add(time.Hour), PeriodHour.PeriodEnd(start))
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), PeriodDay.PeriodEnd(start))

	monthStart := MonthStart(2026, time.January)
	require.Equal(t, MonthStart(2026, time.February), PeriodMonth.PeriodEnd(monthStart))
}

func TestSourceEnabled(t *testing.T) {
	var cfg CollectionConfig
	require.True(t, cfg.SourceEnabled("openmeteo"))

	cfg.Sources = []string{"openmeteo"}
	require.True(t, cfg.SourceEnabled("openmeteo"))
	require.False(t, cfg.SourceEnabled("openweathermap"))
}
