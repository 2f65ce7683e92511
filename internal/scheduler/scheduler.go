// Package scheduler drives the pipeline's periodic jobs: realtime collection,
// the three rollup tiers, and forecast refresh. Each job type has its own
// period and retry policy; a tick that exhausts its retries is abandoned and
// the job simply runs again at its next natural period.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/aggregate"
	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

// JobPolicy is the retry and time-limit configuration for one job type.
type JobPolicy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int

	// Backoff is the fixed delay between attempts.
	Backoff time.Duration

	// SoftLimit is the advisory deadline after which a batch stops admitting
	// new per-location work and returns with partial results.
	SoftLimit time.Duration

	// HardLimit cancels the attempt's context outright.
	HardLimit time.Duration
}

// Config holds the periods and policies for all five job types. Defaults
// follow the pipeline design: collection every minute, rollups just after
// each bucket closes, forecasts four times a day.
type Config struct {
	FetchInterval    time.Duration
	ForecastInterval time.Duration

	Realtime JobPolicy
	Hourly   JobPolicy
	Daily    JobPolicy
	Monthly  JobPolicy
	Forecast JobPolicy
}

func DefaultConfig() Config {
	return Config{
		FetchInterval:    time.Minute,
		ForecastInterval: 6 * time.Hour,
		Realtime: JobPolicy{
			MaxRetries: 3,
			Backoff:    60 * time.Second,
			SoftLimit:  4 * time.Minute,
			HardLimit:  5 * time.Minute,
		},
		Hourly: JobPolicy{
			MaxRetries: 2,
			Backoff:    300 * time.Second,
			SoftLimit:  8 * time.Minute,
			HardLimit:  10 * time.Minute,
		},
		Daily: JobPolicy{
			MaxRetries: 2,
			Backoff:    600 * time.Second,
			SoftLimit:  8 * time.Minute,
			HardLimit:  10 * time.Minute,
		},
		Monthly: JobPolicy{
			MaxRetries: 2,
			Backoff:    1800 * time.Second,
			SoftLimit:  8 * time.Minute,
			HardLimit:  10 * time.Minute,
		},
		Forecast: JobPolicy{
			MaxRetries: 2,
			Backoff:    1800 * time.Second,
			SoftLimit:  8 * time.Minute,
			HardLimit:  10 * time.Minute,
		},
	}
}

// Scheduler owns the gocron instance and the job definitions.
type Scheduler struct {
	sched  *gocron.Scheduler
	svc    *telemetry.Service
	engine *aggregate.Engine
	locs   telemetry.LocationSource
	cfg    Config

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(svc *telemetry.Service, engine *aggregate.Engine, locs telemetry.LocationSource, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sched:   gocron.NewScheduler(time.UTC),
		svc:     svc,
		engine:  engine,
		locs:    locs,
		cfg:     cfg,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start registers all five job types and starts the scheduler asynchronously.
func (s *Scheduler) Start() error {
	if _, err := s.sched.Every(s.cfg.FetchInterval).Do(func() {
		s.runJob("realtime_fetch", s.cfg.Realtime, s.svc.CollectAll)
	}); err != nil {
		return err
	}

	// Rollups only run for buckets whose window has fully elapsed, so each
	// tick targets "now minus one period", never the current bucket.
	if _, err := s.sched.Cron("0 * * * *").Do(func() {
		s.runJob("hourly_rollup", s.cfg.Hourly, func(ctx context.Context) error {
			hour := lastCompletedHour(time.Now())
			return s.engine.RollupHourForAll(ctx, s.locs.List(true), hour)
		})
	}); err != nil {
		return err
	}

	if _, err := s.sched.Cron("10 0 * * *").Do(func() {
		s.runJob("daily_rollup", s.cfg.Daily, func(ctx context.Context) error {
			day := lastCompletedDay(time.Now())
			return s.engine.RollupDayForAll(ctx, s.locs.List(true), day)
		})
	}); err != nil {
		return err
	}

	if _, err := s.sched.Cron("30 0 1 * *").Do(func() {
		s.runJob("monthly_rollup", s.cfg.Monthly, func(ctx context.Context) error {
			year, month := telemetry.PreviousMonth(time.Now())
			return s.engine.RollupMonthForAll(ctx, s.locs.List(true), year, month)
		})
	}); err != nil {
		return err
	}

	if _, err := s.sched.Every(s.cfg.ForecastInterval).Do(func() {
		s.runJob("forecast_fetch", s.cfg.Forecast, s.svc.RefreshAllForecasts)
	}); err != nil {
		return err
	}

	s.sched.StartAsync()
	log.Printf("scheduler: started with %d jobs", len(s.sched.Jobs()))
	return nil
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.sched.Stop()
}

// runJob executes one tick of a job under its policy: each attempt gets a
// fresh context with the hard limit and the advisory soft deadline, failures
// are retried with a fixed backoff, and an exhausted tick is abandoned
// knowing the job reschedules at its next period regardless.
func (s *Scheduler) runJob(name string, policy JobPolicy, fn func(ctx context.Context) error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := s.runAttempt(policy, fn)
		if err == nil {
			log.Printf("scheduler: job %s succeeded in %s", name, time.Since(start).Round(time.Millisecond))
			return
		}

		if attempt >= policy.MaxRetries {
			log.Printf("scheduler: job %s failed after %d attempts, giving up until next period: %v",
				name, attempt+1, err)
			return
		}
		log.Printf("scheduler: job %s attempt %d/%d failed, retrying in %s: %v",
			name, attempt+1, policy.MaxRetries+1, policy.Backoff, err)

		select {
		case <-s.baseCtx.Done():
			return
		case <-time.After(policy.Backoff):
		}
	}
}

func (s *Scheduler) runAttempt(policy JobPolicy, fn func(ctx context.Context) error) error {
	ctx := s.baseCtx
	cancel := context.CancelFunc(func() {})
	if policy.HardLimit > 0 {
		ctx, cancel = context.WithTimeout(ctx, policy.HardLimit)
	}
	defer cancel()

	if policy.SoftLimit > 0 {
		ctx = telemetry.WithSoftDeadline(ctx, time.Now().Add(policy.SoftLimit))
	}
	return fn(ctx)
}

// lastCompletedHour returns the start of the hour preceding now.
func lastCompletedHour(now time.Time) time.Time {
	return telemetry.HourStart(now).Add(-time.Hour)
}

// lastCompletedDay returns midnight of the day preceding now.
func lastCompletedDay(now time.Time) time.Time {
	return telemetry.DayStart(now).AddDate(0, 0, -1)
}
