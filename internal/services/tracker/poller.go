package tracker

import (
	"context"
	"time"

	"deepreport/internal/research"
)

const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 30 * time.Second
)

// StatusChecker reads the current state of a research job.
type StatusChecker interface {
	CheckStatus(ctx context.Context, jobID string) (*research.Job, error)
}

// UpdateFunc receives every status read, in attempt order starting at 1.
type UpdateFunc func(attempt int, job *research.Job)

type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	return o
}

// Poll checks jobID until it is terminal, the attempts run out or ctx is done.
//
// A completed job is returned with a nil error. A failed job returns *JobFailedError,
// a cancelled one ErrJobCancelled, and running out of attempts *PollingTimeoutError;
// the last job read is returned alongside those. A status read error ends the loop at
// once. When ctx is done the loop returns ctx.Err(); a check already in flight is
// allowed to finish but its result is dropped and onUpdate is not called.
func Poll(ctx context.Context, checker StatusChecker, jobID string, onUpdate UpdateFunc, opts PollOptions) (*research.Job, error) {
	opts = opts.withDefaults()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := checker.CheckStatus(context.WithoutCancel(ctx), jobID)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err != nil {
			return nil, err
		}

		if onUpdate != nil {
			onUpdate(attempt, job)
		}

		switch job.Status {
		case research.StatusCompleted:
			return job, nil
		case research.StatusFailed:
			failure := &JobFailedError{Message: "Research job failed", Type: "unknown"}
			if job.Error != nil {
				failure.Message, failure.Type = job.Error.Message, job.Error.Type
			}
			return job, failure
		case research.StatusCancelled:
			return job, ErrJobCancelled
		}

		if attempt >= opts.MaxAttempts {
			return job, &PollingTimeoutError{Attempts: attempt}
		}

		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
