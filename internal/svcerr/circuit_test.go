package svcerr

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("embedder",
		WithMaxFailures(3),
		WithResetTimeout(1*time.Second),
	)

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}

	// Then: circuit is open
	assert.Equal(t, StateOpen, cb.State())

	// And: requests are rejected
	err := cb.Execute(func() error { return nil })
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// Given: an open circuit breaker
	cb := NewCircuitBreaker("embedder",
		WithMaxFailures(2),
		WithResetTimeout(50*time.Millisecond),
	)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}
	require.Equal(t, StateOpen, cb.State())

	// When: waiting for reset timeout
	time.Sleep(60 * time.Millisecond)

	// Then: circuit is half-open and allows one request through
	executed := false
	err := cb.Execute(func() error {
		executed = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReOpens(t *testing.T) {
	cb := NewCircuitBreaker("embedder",
		WithMaxFailures(2),
		WithResetTimeout(50*time.Millisecond),
	)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}
	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("still failing") })

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsClosed(t *testing.T) {
	cb := NewCircuitBreaker("embedder", WithMaxFailures(5), WithResetTimeout(time.Second))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}

	err := cb.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestExecuteWithResult_UsesFallbackWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("embedder", WithMaxFailures(1), WithResetTimeout(time.Second))
	_ = cb.Execute(func() error { return errors.New("error") })

	fallbackCalled := false
	result, err := ExecuteWithResult(cb,
		func() (string, error) { return "primary", nil },
		func() (string, error) {
			fallbackCalled = true
			return "fallback", nil
		},
	)

	assert.NoError(t, err)
	assert.True(t, fallbackCalled)
	assert.Equal(t, "fallback", result)
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("embedder", WithMaxFailures(10), WithResetTimeout(time.Second))

	var wg sync.WaitGroup
	var successCount, failCount atomic.Int32

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := cb.Execute(func() error {
				if i%2 == 0 {
					return nil
				}
				return errors.New("error")
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(20), successCount.Load()+failCount.Load())
}

func TestCircuitBreaker_AllowReflectsState(t *testing.T) {
	cb := NewCircuitBreaker("embedder", WithMaxFailures(1), WithResetTimeout(time.Second))
	assert.True(t, cb.Allow())

	_ = cb.Execute(func() error { return errors.New("error") })
	assert.False(t, cb.Allow())
}

func TestNewCircuitBreaker_DefaultValues(t *testing.T) {
	cb := NewCircuitBreaker("embedder")

	assert.Equal(t, "embedder", cb.Name())
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, StateClosed, cb.State())
}

func TestErrCircuitOpen_Error(t *testing.T) {
	assert.Equal(t, "circuit breaker is open", ErrCircuitOpen.Error())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
