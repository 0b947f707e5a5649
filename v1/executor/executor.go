// Package executor implements Executor: running a task's
// payload under either soft (cooperative, in-process) or hard (container,
// preemptible) isolation once the Scheduler fires it.
package executor

import (
	"context"
	"errors"
	"time"
)

// Result is the outcome of running one task.
type Result struct {
	Output []byte
	Err    error
	// TimedOut is set when Lifetime elapsed before the task returned.
	TimedOut bool
}

// ErrTimeout is wrapped into Result.Err when a task is killed for exceeding
// its lifetime.
var ErrTimeout = errors.New("executor: task exceeded its lifetime")

// Job is everything an Executor needs to run one task: the Task
// fields relevant to execution.
type Job struct {
	TaskID   string
	Handler  string
	Args     []byte
	Kwargs   []byte
	Lifetime time.Duration
}

// Interface is implemented by both isolation modes. Run blocks until the
// job finishes, times out, or ctx is cancelled by the caller (service
// shutdown).
type Interface interface {
	Run(ctx context.Context, job Job) Result
}
