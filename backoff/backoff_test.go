package backoff_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/bwtree/backoff"
)

// TestAttemptMonotonicity covers P3: after N Backoff() calls with no
// Reset(), Attempt() is N, and ShouldRetry(M) is true iff N < M.
func TestAttemptMonotonicity(t *testing.T) {
	ctrl := backoff.New(backoff.Config{Min: time.Nanosecond, Max: time.Microsecond, SpinLimit: 0})

	for n := 0; n < 5; n++ {
		require.Equal(t, n, ctrl.Attempt())
		require.True(t, ctrl.ShouldRetry(5))
		ctrl.Backoff()
	}
	require.Equal(t, 5, ctrl.Attempt())
	require.False(t, ctrl.ShouldRetry(5))
	require.True(t, ctrl.ShouldRetry(6))
}

func TestResetClearsAttempt(t *testing.T) {
	ctrl := backoff.New(backoff.DefaultConfig)
	ctrl.Backoff()
	ctrl.Backoff()
	require.Equal(t, 2, ctrl.Attempt())

	ctrl.Reset()
	require.Equal(t, 0, ctrl.Attempt())
}

func TestFirstBackoffDoesNotWait(t *testing.T) {
	ctrl := backoff.New(backoff.Config{Min: time.Second, Max: time.Second, SpinLimit: 0})

	start := time.Now()
	ctrl.Backoff()
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSpinThenBackoffDoesNotCountSpinsAgainstRetryCap(t *testing.T) {
	ctrl := backoff.New(backoff.Config{Min: time.Nanosecond, Max: time.Microsecond})
	sb := backoff.NewSpinThenBackoff(ctrl, 3)

	for i := 0; i < 3; i++ {
		require.True(t, sb.ShouldRetry(1))
		sb.Backoff()
	}
	// Spins exhausted: the wrapped controller hasn't advanced yet.
	require.Equal(t, 0, ctrl.Attempt())

	sb.Backoff()
	require.Equal(t, 1, ctrl.Attempt())
	require.False(t, sb.ShouldRetry(1))
}

func TestSpinThenBackoffReset(t *testing.T) {
	ctrl := backoff.New(backoff.DefaultConfig)
	sb := backoff.NewSpinThenBackoff(ctrl, 2)

	sb.Backoff()
	sb.Backoff()
	sb.Backoff()
	require.Equal(t, 1, ctrl.Attempt())

	sb.Reset()
	require.Equal(t, 0, ctrl.Attempt())
}
