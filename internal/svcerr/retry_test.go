package svcerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying with default config
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond

	err := Retry(context.Background(), cfg, fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("persistent error")
	}

	cfg := RetryConfig{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}

	err := Retry(context.Background(), cfg, fn)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	fn := func() error {
		time.Sleep(100 * time.Millisecond)
		return errors.New("error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 200 * time.Millisecond

	start := time.Now()
	err := Retry(ctx, cfg, fn)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRetry_ExponentialBackoff(t *testing.T) {
	var timestamps []time.Time
	attempts := 0
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		attempts++
		if attempts < 4 {
			return errors.New("error")
		}
		return nil
	}

	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 20 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	_ = Retry(context.Background(), cfg, fn)

	require.Len(t, timestamps, 4)

	delay1 := timestamps[1].Sub(timestamps[0])
	delay2 := timestamps[2].Sub(timestamps[1])
	delay3 := timestamps[3].Sub(timestamps[2])

	assert.InDelta(t, 20, delay1.Milliseconds(), 15)
	assert.InDelta(t, 40, delay2.Milliseconds(), 20)
	assert.InDelta(t, 80, delay3.Milliseconds(), 40)
}

func TestRetry_CapsAtMaxDelay(t *testing.T) {
	var timestamps []time.Time
	attempts := 0
	fn := func() error {
		timestamps = append(timestamps, time.Now())
		attempts++
		if attempts < 5 {
			return errors.New("error")
		}
		return nil
	}

	cfg := RetryConfig{MaxRetries: 10, InitialDelay: 20 * time.Millisecond, MaxDelay: 30 * time.Millisecond, Multiplier: 2.0}

	_ = Retry(context.Background(), cfg, fn)

	for i := 2; i < len(timestamps); i++ {
		delay := timestamps[i].Sub(timestamps[i-1])
		assert.LessOrEqual(t, delay.Milliseconds(), int64(50))
	}
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	fn := func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("error")
		}
		return 42, nil
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond

	result, err := RetryWithResult(context.Background(), cfg, fn)

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestRetryWithResult_ReturnsZeroOnFailure(t *testing.T) {
	fn := func() (string, error) {
		return "partial", errors.New("error")
	}

	cfg := RetryConfig{MaxRetries: 1, InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2.0}

	result, err := RetryWithResult(context.Background(), cfg, fn)

	assert.Error(t, err)
	assert.Equal(t, "", result)
}

func TestRetry_ImmediateSuccessNoDelay(t *testing.T) {
	fn := func() error { return nil }

	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}

	start := time.Now()
	err := Retry(context.Background(), cfg, fn)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestDefaultRetryConfig_HasSensibleDefaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
}
