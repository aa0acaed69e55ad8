package tracker

import (
	"errors"
	"fmt"
)

var (
	ErrJobCancelled    = errors.New("Research job was cancelled")
	ErrPollInProgress  = errors.New("a poll is already running for this job")
	ErrAlreadyTracking = errors.New("report is already being tracked")
	ErrNotTracking     = errors.New("report is not being tracked")
	ErrNotResearching  = errors.New("report has no research job in progress")
)

// JobFailedError is returned when the backend reports the job as failed. Its
// message is the backend's message, unchanged.
type JobFailedError struct {
	Message string
	Type    string
}

func (e *JobFailedError) Error() string {
	return e.Message
}

// PollingTimeoutError means the job was still running after every allowed attempt.
type PollingTimeoutError struct {
	Attempts int
}

func (e *PollingTimeoutError) Error() string {
	return "Research job polling timeout"
}

func describe(err error) string {
	var timeout *PollingTimeoutError
	if errors.As(err, &timeout) {
		return fmt.Sprintf("%s after %d attempts", timeout.Error(), timeout.Attempts)
	}
	return err.Error()
}
