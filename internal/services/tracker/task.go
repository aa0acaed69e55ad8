package tracker

import (
	"context"
	"sync"

	"deepreport/internal/research"
)

// Task runs one Poll in the background and can be stopped. A stopped or finished
// task may be started again; it then polls from attempt 1.
type Task struct {
	checker StatusChecker
	jobID   string
	opts    PollOptions

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	job     *research.Job
	err     error
}

func NewTask(checker StatusChecker, jobID string, opts PollOptions) *Task {
	done := make(chan struct{})
	close(done)
	return &Task{checker: checker, jobID: jobID, opts: opts, done: done}
}

func (t *Task) JobID() string {
	return t.jobID
}

// Start begins polling. It returns ErrPollInProgress if the task is already running.
func (t *Task) Start(ctx context.Context, onUpdate UpdateFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrPollInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.running = true
	t.cancel = cancel
	t.done = done
	t.job, t.err = nil, nil

	go func() {
		defer close(done)
		defer cancel()

		job, err := Poll(ctx, t.checker, t.jobID, onUpdate, t.opts)

		t.mu.Lock()
		t.job, t.err = job, err
		t.running = false
		t.mu.Unlock()
	}()

	return nil
}

// Stop cancels the poll and waits for it to return. It must not be called from
// the task's own onUpdate.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-done
}

// Done is closed when the current run has returned.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result is the outcome of the last finished run.
func (t *Task) Result() (*research.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job, t.err
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
