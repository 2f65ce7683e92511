package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brokenBackend fails every call; the cache must degrade to the compute path.
type brokenBackend struct{}

func (brokenBackend) Get(string) ([]byte, bool, error) {
	return nil, false, errors.New("backend down")
}

func (brokenBackend) Set(string, []byte, time.Duration) error {
	return errors.New("backend down")
}

func (brokenBackend) Delete(string) error { return errors.New("backend down") }

func (brokenBackend) Close() {}

func TestGetOrCompute_PopulatesOnMiss(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("value"), nil
	}

	got, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	require.Equal(t, 1, calls)

	// Second read is served from the cache.
	got, err = c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	require.Equal(t, 1, calls)
}

func TestGetOrCompute_ExpiredEntryRecomputed(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte("v"), nil
	}

	_, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)

	backend.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestGetOrCompute_BackendFailureDegradesSilently(t *testing.T) {
	c := New(brokenBackend{})
	ctx := context.Background()

	got, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("from store"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("from store"), got)
}

func TestGetOrCompute_ComputeErrorSurfaces(t *testing.T) {
	c := New(NewMemoryBackend())
	ctx := context.Background()

	wantErr := errors.New("store unavailable")
	_, err := c.GetOrCompute(ctx, "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestInvalidateLocation(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend)

	require.NoError(t, backend.Set(RealtimeKey("loc1"), []byte("a"), time.Minute))
	require.NoError(t, backend.Set(ForecastKey("loc1"), []byte("b"), time.Minute))
	require.NoError(t, backend.Set(RealtimeKey("loc2"), []byte("c"), time.Minute))
	require.NoError(t, backend.Set(SummaryKey(true), []byte("d"), time.Minute))
	require.NoError(t, backend.Set(SummaryKey(false), []byte("e"), time.Minute))

	c.InvalidateLocation("loc1")

	_, ok, _ := backend.Get(RealtimeKey("loc1"))
	require.False(t, ok)
	_, ok, _ = backend.Get(ForecastKey("loc1"))
	require.False(t, ok)
	_, ok, _ = backend.Get(SummaryKey(true))
	require.False(t, ok)
	_, ok, _ = backend.Get(SummaryKey(false))
	require.False(t, ok)

	// Unrelated locations survive.
	_, ok, _ = backend.Get(RealtimeKey("loc2"))
	require.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	backend := NewMemoryBackend()
	c := New(backend)

	require.NoError(t, backend.Set(RealtimeKey("loc1"), []byte("a"), time.Minute))
	require.NoError(t, backend.Set(SummaryKey(true), []byte("b"), time.Minute))

	c.InvalidateAll()
	require.Equal(t, 0, backend.Len())
}
