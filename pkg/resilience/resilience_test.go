package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}

	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), config, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	config := &RetryConfig{
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1.0,
	}

	testErr := errors.New("permanent")
	calls := 0
	err := RetryWithExponentialBackoff(context.Background(), config, func() error {
		calls++
		return testErr
	})

	assert.Equal(t, testErr, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithExponentialBackoff(ctx, DefaultRetryConfig(), func() error {
		t.Fatal("should not be called")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}
