package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpensAfterThresholdAndClosesAfterDuration(t *testing.T) {
	b := New(Config{FailureThreshold: 3, BreakDuration: 20 * time.Millisecond})
	fixedNow := time.Now()
	b.now = func() time.Time { return fixedNow }

	require.False(t, b.IsOpen())
	b.RecordFailure()
	b.RecordFailure()
	require.False(t, b.IsOpen())
	b.RecordFailure()
	require.True(t, b.IsOpen())

	fixedNow = fixedNow.Add(19 * time.Millisecond)
	require.True(t, b.IsOpen())

	fixedNow = fixedNow.Add(2 * time.Millisecond)
	require.False(t, b.IsOpen())
}

func TestRecordSuccessResetsCounter(t *testing.T) {
	b := New(Config{FailureThreshold: 2, BreakDuration: time.Second})
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	require.False(t, b.IsOpen())
}

func TestCallReturnsFallbackWhenOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, BreakDuration: time.Minute})
	b.RecordFailure()
	require.True(t, b.IsOpen())

	called := false
	result, ran, err := Call(context.Background(), b, func(ctx context.Context) (string, error) {
		called = true
		return "fresh", nil
	}, "fallback")

	require.NoError(t, err)
	require.False(t, ran)
	require.False(t, called)
	require.Equal(t, "fallback", result)
}

func TestCallRunsAndRecordsOutcome(t *testing.T) {
	b := New(Config{FailureThreshold: 1, BreakDuration: time.Minute})

	_, ran, err := Call(context.Background(), b, func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	}, "fallback")
	require.Error(t, err)
	require.True(t, ran)
	require.True(t, b.IsOpen())
}
