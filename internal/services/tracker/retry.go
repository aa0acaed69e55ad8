package tracker

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

var retryBaseDelay = 500 * time.Millisecond

// retryWithBackoff runs operation up to maxAttempts times, sleeping
// retryBaseDelay*n² after failed attempt n: 500ms, 2s, 4.5s.
func retryWithBackoff(taskID string, operation func() error, maxAttempts int, taskLogger func(taskID, msg string)) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 && taskLogger != nil {
				taskLogger(taskID, fmt.Sprintf("✓ Operation succeeded on retry %d/%d", attempt, maxAttempts))
			}
			return nil
		}

		lastErr = err

		if attempt < maxAttempts {
			backoff := retryBaseDelay * time.Duration(attempt*attempt)
			if taskLogger != nil {
				taskLogger(taskID, fmt.Sprintf("⚠ Attempt %d/%d failed: %v (retrying in %v)", attempt, maxAttempts, err, backoff))
			}
			zap.S().Named("tracker").Warnw("retrying operation", "task_id", taskID, "attempt", attempt, "max_attempts", maxAttempts, "backoff", backoff, "error", err)
			time.Sleep(backoff)
		} else {
			if taskLogger != nil {
				taskLogger(taskID, fmt.Sprintf("✗ All %d attempts failed: %v", maxAttempts, err))
			}
			zap.S().Named("tracker").Errorw("all attempts failed", "task_id", taskID, "max_attempts", maxAttempts, "error", err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
