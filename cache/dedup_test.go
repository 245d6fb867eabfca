package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeduplicatorDoCollapsesConcurrentCallers(t *testing.T) {
	d := NewDeduplicator()
	var calls int32

	load := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return "v", nil
	}

	results := make(chan any, 5)
	for i := 0; i < 5; i++ {
		go func() {
			v, err := d.Do(context.Background(), "k", load)
			require.NoError(t, err)
			results <- v
		}()
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, "v", <-results)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDeduplicatorDoPropagatesError(t *testing.T) {
	d := NewDeduplicator()
	boom := errors.New("boom")
	_, err := d.Do(context.Background(), "k", func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDeduplicatorSWRServesCachedAndRevalidatesInBackground(t *testing.T) {
	fixed := time.Now()
	SetNowFunc(func() time.Time { return fixed })
	defer SetNowFunc(time.Now)

	d := NewDeduplicator(WithRevalidateWindow(0))

	v, err := d.GetOrLoadSWR(context.Background(), "k", 50*time.Millisecond, func(ctx context.Context) (any, error) {
		return "v1", nil
	})
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	fixed = fixed.Add(60 * time.Millisecond)

	revalidated := make(chan struct{})
	v, err = d.GetOrLoadSWR(context.Background(), "k", 50*time.Millisecond, func(ctx context.Context) (any, error) {
		close(revalidated)
		return "v2", nil
	})
	require.NoError(t, err)
	require.Equal(t, "v1", v, "stale value is returned immediately, not the fresh one")

	select {
	case <-revalidated:
	case <-time.After(time.Second):
		t.Fatal("background revalidation did not run")
	}
}

func TestDeduplicatorInvalidateClearsSlot(t *testing.T) {
	d := NewDeduplicator()
	_, _ = d.GetOrLoadSWR(context.Background(), "k", time.Hour, func(ctx context.Context) (any, error) {
		return "v1", nil
	})
	d.Invalidate("k")

	var called bool
	_, _ = d.GetOrLoadSWR(context.Background(), "k", time.Hour, func(ctx context.Context) (any, error) {
		called = true
		return "v2", nil
	})
	require.True(t, called, "invalidate must force a fresh load")
}

func TestWithSwrNoStaleAwaitsFn(t *testing.T) {
	res, err := WithSwr(context.Background(), func(ctx context.Context) (any, error) {
		return "fresh", nil
	}, SwrOptions{})
	require.NoError(t, err)
	require.Equal(t, "fresh", res.Value)
	require.False(t, res.Stale)
}

func TestWithSwrZeroTimeoutReturnsStaleImmediately(t *testing.T) {
	bgDone := make(chan struct{})
	res, err := WithSwr(context.Background(), func(ctx context.Context) (any, error) {
		t.Fatal("fn must not be awaited synchronously when timeout is zero")
		return nil, nil
	}, SwrOptions{
		HasStale:          true,
		StaleValue:        "stale",
		HasTimeout:        true,
		Timeout:           0,
		BackgroundRefresh: func() { close(bgDone) },
	})
	require.NoError(t, err)
	require.Equal(t, "stale", res.Value)
	require.True(t, res.Stale)

	select {
	case <-bgDone:
	case <-time.After(time.Second):
		t.Fatal("background refresh was not kicked off")
	}
}

func TestWithSwrTimeoutRacesFreshFetch(t *testing.T) {
	res, err := WithSwr(context.Background(), func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "fresh", nil
	}, SwrOptions{
		HasStale:   true,
		StaleValue: "stale",
		HasTimeout: true,
		Timeout:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", res.Value)
	require.False(t, res.Stale)
}

func TestWithSwrTimeoutFallsBackToStaleAndAborts(t *testing.T) {
	var aborted int32
	bgDone := make(chan struct{})
	res, err := WithSwr(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		atomic.StoreInt32(&aborted, 1)
		return nil, ctx.Err()
	}, SwrOptions{
		HasStale:          true,
		StaleValue:        "stale",
		HasTimeout:        true,
		Timeout:           10 * time.Millisecond,
		AbortOnTimeout:    true,
		BackgroundRefresh: func() { close(bgDone) },
	})
	require.NoError(t, err)
	require.Equal(t, "stale", res.Value)
	require.True(t, res.Stale)

	select {
	case <-bgDone:
	case <-time.After(time.Second):
		t.Fatal("background refresh was not kicked off")
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&aborted) == 1 }, time.Second, time.Millisecond)
}
