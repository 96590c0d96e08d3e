package errlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestRetry_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return New(CategoryEmbeddingTransient, "overloaded", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsTransientRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return New(CategoryEmbeddingTransient, "overloaded", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "one initial attempt plus two retries")
}

func TestRetry_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return New(CategoryEmbeddingPermanent, "bad request", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_PlainErrorNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_CanceledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func() error {
		return New(CategoryEmbeddingTransient, "never reached", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestError_IsMatchesByCategory(t *testing.T) {
	err := New(CategoryStoreFailure, "commit failed", errors.New("disk full"))
	assert.ErrorIs(t, err, New(CategoryStoreFailure, "", nil))
	assert.NotErrorIs(t, err, New(CategoryReadFailure, "", nil))
}

func TestError_Fatal(t *testing.T) {
	assert.True(t, New(CategoryStoreFailure, "", nil).Fatal())
	assert.True(t, New(CategoryIndexInvariantViolation, "", nil).Fatal())
	assert.False(t, New(CategoryEmbeddingTransient, "", nil).Fatal())
	assert.False(t, New(CategoryReadFailure, "", nil).Fatal())
}
