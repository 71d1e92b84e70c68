package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}, p.BackoffSchedule)
	assert.Equal(t, 30*time.Second, p.MaxBackoff)
	assert.Equal(t, 0.2, p.JitterFactor)
}

func TestPolicy_CalculateBackoff_IndexesScheduleWithoutJitter(t *testing.T) {
	p := Policy{
		MaxAttempts:     5,
		BackoffSchedule: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		MaxBackoff:      30 * time.Second,
		JitterFactor:    0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 5 * time.Second},
		{2, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.CalculateBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_CalculateBackoff_DoublesPastScheduleThenCapsAtMaxBackoff(t *testing.T) {
	p := Policy{
		MaxAttempts:     10,
		BackoffSchedule: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		MaxBackoff:      30 * time.Second,
		JitterFactor:    0,
	}

	// attempt 3 is the first past the 3-entry schedule: last entry (30s)
	// doubled once would be 60s, capped back down to MaxBackoff.
	assert.Equal(t, 30*time.Second, p.CalculateBackoff(3))
	assert.Equal(t, 30*time.Second, p.CalculateBackoff(4))
	assert.Equal(t, 30*time.Second, p.CalculateBackoff(100))
}

func TestPolicy_CalculateBackoff_DoublingVisibleBelowCap(t *testing.T) {
	p := Policy{
		MaxAttempts:     10,
		BackoffSchedule: []time.Duration{1 * time.Second},
		MaxBackoff:      time.Hour,
		JitterFactor:    0,
	}

	assert.Equal(t, 1*time.Second, p.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, p.CalculateBackoff(2))
	assert.Equal(t, 8*time.Second, p.CalculateBackoff(3))
}

func TestPolicy_CalculateBackoff_JitterIsSymmetricAndBounded(t *testing.T) {
	p := Policy{
		MaxAttempts:     5,
		BackoffSchedule: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		MaxBackoff:      30 * time.Second,
		JitterFactor:    0.2,
	}

	for i := 0; i < 50; i++ {
		d := p.CalculateBackoff(1)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 6*time.Second)
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	assert.True(t, p.ShouldRetry(0))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
	assert.False(t, p.ShouldRetry(5))
}

func TestExecute_SucceedsOnFirstTry(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), Policy{MaxAttempts: 3}, Callbacks{}, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	policy := Policy{MaxAttempts: 3, BackoffSchedule: []time.Duration{time.Millisecond}, MaxBackoff: 10 * time.Millisecond}
	var retries int

	err := Execute(context.Background(), policy, Callbacks{
		OnRetry: func(attempt int, err error, delay time.Duration) { retries++ },
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestExecute_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	policy := Policy{MaxAttempts: 2, BackoffSchedule: []time.Duration{time.Millisecond}, MaxBackoff: 10 * time.Millisecond}
	wantErr := errors.New("boom")
	var finalAttempts int
	var finalErr error

	err := Execute(context.Background(), policy, Callbacks{
		OnFinalError: func(attempts int, err error) {
			finalAttempts = attempts
			finalErr = err
		},
	}, func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 2, finalAttempts)
	assert.ErrorIs(t, finalErr, wantErr)
}

func TestExecute_ContextCancelledDuringBackoffStopsRetrying(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BackoffSchedule: []time.Duration{time.Hour}, MaxBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Execute(ctx, policy, Callbacks{}, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExecute_ContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Execute(ctx, Policy{MaxAttempts: 3}, Callbacks{}, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
