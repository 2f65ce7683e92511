package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PKA-OpenDynamics/CityLens-sub001/internal/telemetry"
)

func testScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{baseCtx: ctx, cancel: cancel}
}

func TestRunJob_SucceedsOnRetry(t *testing.T) {
	s := testScheduler()
	defer s.cancel()

	calls := 0
	s.runJob("test", JobPolicy{MaxRetries: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.Equal(t, 3, calls)
}

func TestRunJob_GivesUpAfterExhaustingRetries(t *testing.T) {
	s := testScheduler()
	defer s.cancel()

	calls := 0
	s.runJob("test", JobPolicy{MaxRetries: 2, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("persistent")
	})

	// First attempt plus MaxRetries re-attempts.
	require.Equal(t, 3, calls)
}

func TestRunJob_NoRetryOnSuccess(t *testing.T) {
	s := testScheduler()
	defer s.cancel()

	calls := 0
	s.runJob("test", JobPolicy{MaxRetries: 3, Backoff: time.Hour}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Equal(t, 1, calls)
}

func TestRunJob_StopCancelsBackoffWait(t *testing.T) {
	s := testScheduler()

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runJob("test", JobPolicy{MaxRetries: 5, Backoff: time.Hour}, func(ctx context.Context) error {
			calls++
			return errors.New("fail")
		})
	}()

	// Let the first attempt fail and enter the backoff wait, then stop.
	time.Sleep(50 * time.Millisecond)
	s.cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runJob did not return after cancel")
	}
	require.Equal(t, 1, calls)
}

func TestRunAttempt_AppliesLimits(t *testing.T) {
	s := testScheduler()
	defer s.cancel()

	policy := JobPolicy{HardLimit: time.Minute, SoftLimit: time.Millisecond}
	err := s.runAttempt(policy, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a hard deadline on the attempt context")
		}
		time.Sleep(5 * time.Millisecond)
		if !telemetry.SoftDeadlineExceeded(ctx) {
			t.Error("expected the soft deadline to have passed")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestLastCompletedHour(t *testing.T) {
	now := time.Date(2026, time.March, 3, 14, 17, 9, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.March, 3, 13, 0, 0, 0, time.UTC), lastCompletedHour(now))

	midnight := time.Date(2026, time.March, 3, 0, 5, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.March, 2, 23, 0, 0, 0, time.UTC), lastCompletedHour(midnight))
}

func TestLastCompletedDay(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 10, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), lastCompletedDay(now))
}
