package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepreport/internal/research"
)

type update struct {
	attempt int
	status  research.Status
}

func collect(updates *[]update) UpdateFunc {
	return func(attempt int, job *research.Job) {
		*updates = append(*updates, update{attempt: attempt, status: job.Status})
	}
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("Should resolve with the completed job after each attempt is reported", func(t *testing.T) {
		checker := newFakeChecker(inProgress(), inProgress(), completed("# Report"))
		var updates []update

		job, err := Poll(ctx, checker, "resp_1", collect(&updates), fastPoll)
		require.NoError(t, err)
		assert.Equal(t, "# Report", job.Results.Report)
		assert.Equal(t, []update{
			{1, research.StatusInProgress},
			{2, research.StatusInProgress},
			{3, research.StatusCompleted},
		}, updates)
	})

	t.Run("Should reject with the backend failure message", func(t *testing.T) {
		checker := newFakeChecker(failed("quota exceeded"))

		job, err := Poll(ctx, checker, "resp_1", nil, fastPoll)
		require.Error(t, err)
		assert.Equal(t, "quota exceeded", err.Error())

		var failure *JobFailedError
		require.True(t, errors.As(err, &failure))
		assert.Equal(t, "server_error", failure.Type)
		assert.Equal(t, research.StatusFailed, job.Status)
		assert.Equal(t, 1, checker.Calls())
	})

	t.Run("Should reject a cancelled job", func(t *testing.T) {
		_, err := Poll(ctx, newFakeChecker(inProgress(), cancelled()), "resp_1", nil, fastPoll)
		assert.ErrorIs(t, err, ErrJobCancelled)
		assert.Equal(t, "Research job was cancelled", err.Error())
	})

	t.Run("Should time out after exactly max attempts", func(t *testing.T) {
		checker := newFakeChecker(inProgress())
		var updates []update

		start := time.Now()
		_, err := Poll(ctx, checker, "resp_1", collect(&updates), PollOptions{MaxAttempts: 3, Interval: 10 * time.Millisecond})
		elapsed := time.Since(start)

		var timeout *PollingTimeoutError
		require.True(t, errors.As(err, &timeout))
		assert.Equal(t, 3, timeout.Attempts)
		assert.Equal(t, "Research job polling timeout", err.Error())
		assert.Equal(t, 3, checker.Calls())
		assert.Len(t, updates, 3)
		// two sleeps between three attempts, none after the last
		assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	})

	t.Run("Should stop at once on a status check error", func(t *testing.T) {
		checkErr := &research.StatusCheckError{JobID: "resp_1", StatusCode: 500, Message: "boom"}
		checker := newFakeChecker(inProgress(), checkResponse{err: checkErr})
		var updates []update

		_, err := Poll(ctx, checker, "resp_1", collect(&updates), fastPoll)
		assert.ErrorIs(t, err, checkErr)
		assert.Equal(t, 2, checker.Calls())
		assert.Len(t, updates, 1)
	})

	t.Run("Should return context error when cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		checker := newFakeChecker(inProgress())

		var updates []update
		onUpdate := func(attempt int, job *research.Job) {
			updates = append(updates, update{attempt, job.Status})
			cancel()
		}

		_, err := Poll(ctx, checker, "resp_1", onUpdate, PollOptions{MaxAttempts: 5, Interval: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, updates, 1)
	})

	t.Run("Should discard an in-flight result after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		checker := newFakeChecker(completed("late"))
		checker.block = make(chan struct{})

		var updates []update
		result := make(chan error, 1)
		go func() {
			_, err := Poll(ctx, checker, "resp_1", collect(&updates), fastPoll)
			result <- err
		}()

		cancel()
		close(checker.block)

		assert.ErrorIs(t, <-result, context.Canceled)
		assert.Empty(t, updates)
	})

	t.Run("Should apply defaults", func(t *testing.T) {
		opts := PollOptions{}.withDefaults()
		assert.Equal(t, 60, opts.MaxAttempts)
		assert.Equal(t, 30*time.Second, opts.Interval)
	})
}
