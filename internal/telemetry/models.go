package telemetry

import (
	"time"
)

// PeriodType identifies the bucket size of an Aggregate tier.
type PeriodType string

const (
	PeriodHour  PeriodType = "hour"
	PeriodDay   PeriodType = "day"
	PeriodMonth PeriodType = "month"
)

// CollectionConfig controls how a location is collected.
type CollectionConfig struct {
	// Interval between realtime fetches. Zero means "use the global default".
	Interval time.Duration `json:"interval"`

	// Sources enabled for this location. Empty means all configured adapters.
	Sources []string `json:"sources,omitempty"`
}

// SourceEnabled reports whether the named adapter should run for this location.
func (c CollectionConfig) SourceEnabled(name string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// Location is a monitored geographic place.
type Location struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Lat    float64          `json:"lat"`
	Lon    float64          `json:"lon"`
	Active bool             `json:"active"`
	Config CollectionConfig `json:"config"`
}

// Reading is a single normalized measurement from one source for one location.
// Metrics holds only the fields the upstream actually reported; missing fields
// are absent, never zero-filled.
type Reading struct {
	LocationID string             `json:"locationId"`
	Timestamp  time.Time          `json:"timestamp"` // always UTC
	Metrics    map[string]float64 `json:"metrics"`
	Source     string             `json:"source"`
	ReceivedAt time.Time          `json:"receivedAt"`
}

// MetricStats summarizes one metric over a bucket.
type MetricStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// Aggregate is a statistical rollup of the tier below it over one bucket.
// It is uniquely keyed by (LocationID, Period, PeriodStart) and is always
// replaced whole on recompute.
type Aggregate struct {
	LocationID  string                 `json:"locationId"`
	Period      PeriodType             `json:"period"`
	PeriodStart time.Time              `json:"periodStart"`
	PeriodEnd   time.Time              `json:"periodEnd"`
	Metrics     map[string]MetricStats `json:"metrics"`
	ComputedAt  time.Time              `json:"computedAt"`
	SourceCount int                    `json:"sourceCount"`
}

// ForecastPoint is one future timestamp of a forecast document.
type ForecastPoint struct {
	Timestamp  time.Time          `json:"timestamp"`
	Weather    map[string]float64 `json:"weather,omitempty"`
	AirQuality map[string]float64 `json:"airQuality,omitempty"`
}

// ForecastValidity is how long a fetched forecast remains usable.
const ForecastValidity = 5 * 24 * time.Hour

// Forecast is the single forecast document for a location. Each fetch cycle
// fully replaces it; there is never more than one per location.
type Forecast struct {
	LocationID   string          `json:"locationId"`
	LocationName string          `json:"locationName"`
	Points       []ForecastPoint `json:"points"`
	GeneratedAt  time.Time       `json:"generatedAt"`
	ValidUntil   time.Time       `json:"validUntil"`
}

// HourStart truncates t to the top of its hour, in UTC.
func HourStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first instant of the given month in UTC.
func MonthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth returns the year and month immediately before the one
// containing now. It subtracts now's day-of-month in days, which always lands
// inside the prior month regardless of month length.
func PreviousMonth(now time.Time) (int, time.Month) {
	t := now.UTC().AddDate(0, 0, -now.UTC().Day())
	return t.Year(), t.Month()
}

// PeriodEnd returns the exclusive end of the bucket starting at start.
func (p PeriodType) PeriodEnd(start time.Time) time.Time {
	switch p {
	case PeriodHour:
		return start.Add(time.Hour)
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}
