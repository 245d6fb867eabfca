package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	base := 10 * time.Millisecond
	require.Equal(t, 10*time.Millisecond, Exponential(1, base))
	require.Equal(t, 20*time.Millisecond, Exponential(2, base))
	require.Equal(t, 40*time.Millisecond, Exponential(3, base))
}

func TestLinear(t *testing.T) {
	base := 10 * time.Millisecond
	require.Equal(t, base, Linear(1, base))
	require.Equal(t, base, Linear(5, base))
}

func TestFibonacci(t *testing.T) {
	base := time.Millisecond
	require.Equal(t, 1*time.Millisecond, Fibonacci(1, base))
	require.Equal(t, 1*time.Millisecond, Fibonacci(2, base))
	require.Equal(t, 2*time.Millisecond, Fibonacci(3, base))
	require.Equal(t, 3*time.Millisecond, Fibonacci(4, base))
	require.Equal(t, 5*time.Millisecond, Fibonacci(5, base))
}

func TestWithMaxDelay(t *testing.T) {
	s := WithMaxDelay(Exponential, 15*time.Millisecond)
	require.Equal(t, 10*time.Millisecond, s(1, 10*time.Millisecond))
	require.Equal(t, 15*time.Millisecond, s(3, 10*time.Millisecond))
}

func TestWithJitterStaysNonNegativeAndBounded(t *testing.T) {
	s := WithJitter(Linear, 0.5)
	for i := 0; i < 100; i++ {
		d := s(1, 100*time.Millisecond)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
