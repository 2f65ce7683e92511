// Package store provides implementations of the telemetry.Store capability:
// an in-memory store for tests and small deployments, and a BadgerDB store
// whose collections carry per-tier TTLs.
package store

import (
	"time"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// Retention is the per-collection TTL configuration. A zero duration means
// the collection is kept indefinitely.
type Retention struct {
	Raw    time.Duration
	Hourly time.Duration
	Daily  time.Duration
}

// DefaultRetention matches the pipeline's tier design: raw readings live one
// day, hourly aggregates a week, daily aggregates a month, monthly aggregates
// forever.
func DefaultRetention() Retention {
	return Retention{
		Raw:    24 * time.Hour,
		Hourly: 7 * 24 * time.Hour,
		Daily:  30 * 24 * time.Hour,
	}
}

// aggregateTTL maps a period type to its collection TTL.
func (r Retention) aggregateTTL(p telemetry.PeriodType) time.Duration {
	switch p {
	case telemetry.PeriodHour:
		return r.Hourly
	case telemetry.PeriodDay:
		return r.Daily
	default:
		return 0
	}
}
