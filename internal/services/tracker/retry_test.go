package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("Should succeed on first attempt", func(t *testing.T) {
		attemptCount := 0
		err := retryWithBackoff("test-task", func() error {
			attemptCount++
			return nil
		}, 3, nil)

		assert.NoError(t, err)
		assert.Equal(t, 1, attemptCount, "Should only attempt once on success")
	})

	t.Run("Should retry up to maxAttempts times", func(t *testing.T) {
		attemptCount := 0
		err := retryWithBackoff("test-task", func() error {
			attemptCount++
			return errors.New("database is locked")
		}, 3, nil)

		assert.Error(t, err)
		assert.Equal(t, 3, attemptCount, "Should attempt exactly 3 times")
		assert.Contains(t, err.Error(), "failed after 3 attempts")
	})

	t.Run("Should log retries and final success", func(t *testing.T) {
		var logged []string
		attemptCount := 0

		err := retryWithBackoff("test-task", func() error {
			attemptCount++
			if attemptCount < 3 {
				return errors.New("database is locked")
			}
			return nil
		}, 3, func(taskID, msg string) {
			assert.Equal(t, "test-task", taskID)
			logged = append(logged, msg)
		})

		assert.NoError(t, err)
		assert.Len(t, logged, 3, "Should log: 2 retry messages + 1 success message")
		assert.Contains(t, logged[0], "Attempt 1/3 failed")
		assert.Contains(t, logged[1], "Attempt 2/3 failed")
		assert.Contains(t, logged[2], "Operation succeeded on retry 3/3")
	})

	t.Run("Should log all attempts failed message", func(t *testing.T) {
		var logged []string
		err := retryWithBackoff("test-task", func() error {
			return errors.New("persistent error")
		}, 3, func(taskID, msg string) {
			logged = append(logged, msg)
		})

		assert.Error(t, err)
		assert.Len(t, logged, 3)
		assert.Contains(t, logged[2], "All 3 attempts failed")
	})

	t.Run("Should apply quadratic backoff delays", func(t *testing.T) {
		saved := retryBaseDelay
		retryBaseDelay = 20 * time.Millisecond
		defer func() { retryBaseDelay = saved }()

		var attemptTimes []time.Time
		err := retryWithBackoff("test-task", func() error {
			attemptTimes = append(attemptTimes, time.Now())
			if len(attemptTimes) < 3 {
				return errors.New("temporary error")
			}
			return nil
		}, 3, nil)

		assert.NoError(t, err)
		if assert.Len(t, attemptTimes, 3) {
			assert.GreaterOrEqual(t, attemptTimes[1].Sub(attemptTimes[0]), 20*time.Millisecond)
			assert.GreaterOrEqual(t, attemptTimes[2].Sub(attemptTimes[1]), 80*time.Millisecond)
		}
	})

	t.Run("Should return wrapped error with context", func(t *testing.T) {
		originalError := errors.New("network timeout")
		err := retryWithBackoff("test-task", func() error {
			return originalError
		}, 3, nil)

		assert.Contains(t, err.Error(), "failed after 3 attempts")
		assert.ErrorIs(t, err, originalError, "Should wrap original error")
	})
}
