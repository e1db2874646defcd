package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	waits []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	policy := New(3, 2*time.Second)
	policy.Sleep = rec.sleep

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestDoExhaustedReturnsLastErrorWithoutTrailingSleep(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	policy := New(3, 2*time.Second)
	policy.Sleep = rec.sleep

	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("failure " + string(rune('0'+calls)))
	})
	require.EqualError(t, err, "failure 3")
	require.Equal(t, 3, calls)
	require.Len(t, rec.waits, 2)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	policy := New(5, time.Second)
	policy.Sleep = rec.sleep

	sentinel := errors.New("rate limited")
	calls := 0
	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	require.True(t, IsPermanent(err))
	require.Equal(t, 1, calls)
	require.Empty(t, rec.waits)
}

func TestDoAbortsWhenSleepCanceled(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{err: context.Canceled}
	policy := New(3, time.Second)
	policy.Sleep = rec.sleep

	upstream := errors.New("upstream down")
	err := policy.Do(context.Background(), func(context.Context) error { return upstream })
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, upstream)
	require.Len(t, rec.waits, 1)
}

func TestDoInvokesOnRetry(t *testing.T) {
	t.Parallel()

	var attempts []int
	policy := New(3, 10*time.Millisecond)
	policy.Sleep = (&sleepRecorder{}).sleep
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}
	_ = policy.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	require.Equal(t, []int{0, 1}, attempts)
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxAttempts: 4, BaseDelay: time.Second, Jitter: true}
	for attempt := 0; attempt < 3; attempt++ {
		full := time.Second << uint(attempt)
		got := policy.Backoff(attempt)
		require.GreaterOrEqual(t, got, full/2)
		require.Less(t, got, full)
	}
}

func TestValueReturnsResult(t *testing.T) {
	t.Parallel()

	policy := New(2, time.Millisecond)
	policy.Sleep = (&sleepRecorder{}).sleep
	calls := 0
	got, err := Value(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("first")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestSleepContextHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, SleepContext(context.Background(), 0))
}
