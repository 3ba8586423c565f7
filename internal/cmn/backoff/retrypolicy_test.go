package backoff

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffPolicy_ComputeNextInterval(t *testing.T) {
	t.Run("BasicExponentialBackoff", func(t *testing.T) {
		policy := &ExponentialBackoffPolicy{
			InitialInterval: 100 * time.Millisecond,
			BackoffFactor:   2.0,
			MaxInterval:     10 * time.Second,
			MaxRetries:      5,
		}

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
		}
		for i, want := range expected {
			interval, err := policy.ComputeNextInterval(i, 0, nil)
			require.NoError(t, err)
			assert.Equal(t, want, interval, "retry %d", i)
		}

		_, err := policy.ComputeNextInterval(5, 0, nil)
		assert.ErrorIs(t, err, ErrRetriesExhausted)
	})

	t.Run("MaxIntervalCapping", func(t *testing.T) {
		policy := &ExponentialBackoffPolicy{
			InitialInterval: time.Second,
			BackoffFactor:   10,
			MaxInterval:     5 * time.Second,
		}
		interval, err := policy.ComputeNextInterval(3, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, interval)
	})

	t.Run("UnlimitedRetries", func(t *testing.T) {
		policy := NewExponentialBackoffPolicy(time.Millisecond)
		_, err := policy.ComputeNextInterval(1000, 0, nil)
		assert.NoError(t, err)
	})
}

func TestNeverRetry(t *testing.T) {
	_, err := NeverRetry{}.ComputeNextInterval(0, 0, errors.New("x"))
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestSettings_Policy(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		s := DefaultSettings()
		assert.Equal(t, 2*time.Second, s.InitialInterval)
		assert.Equal(t, 2.0, s.Factor)
		assert.Equal(t, 3, s.MaxAttempts)

		p, ok := s.Policy().(*ExponentialBackoffPolicy)
		require.True(t, ok)
		assert.Equal(t, 2, p.MaxRetries)
	})

	t.Run("SingleAttempt", func(t *testing.T) {
		for _, n := range []int{0, 1} {
			_, ok := Settings{MaxAttempts: n}.Policy().(NeverRetry)
			assert.True(t, ok, "max attempts %d", n)
		}
	})
}

func TestRetrier_Next(t *testing.T) {
	policy := flatPolicy(10 * time.Millisecond)
	policy.MaxRetries = 2
	r := NewRetrier(policy)

	_, err := r.Next(nil)
	require.NoError(t, err)
	_, err = r.Next(nil)
	require.NoError(t, err)
	_, err = r.Next(nil)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	r.Reset()
	_, err = r.Next(nil)
	assert.NoError(t, err)
}

func TestRetrier_ConcurrentUse(t *testing.T) {
	policy := flatPolicy(time.Millisecond)
	policy.MaxRetries = 50
	r := NewRetrier(policy)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs int
	)
	for range 100 {
		wg.Go(func() {
			if _, err := r.Next(nil); err != nil {
				mu.Lock()
				errs++
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 50, errs)
}

// flatPolicy waits the same interval before every retry.
func flatPolicy(interval time.Duration) *ExponentialBackoffPolicy {
	p := NewExponentialBackoffPolicy(interval)
	p.BackoffFactor = 1
	return p
}
