package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EliseyGodX/SchedulerGodX/v1/handlers"
	"github.com/EliseyGodX/SchedulerGodX/v1/log"
)

// Soft runs a job's handler in-process inside a goroutine, bounded by a
// context.WithTimeout(Lifetime). This is cooperative isolation: a handler
// that ignores ctx.Done() (the busy_spin scenario) keeps running
// after Run returns, leaking a goroutine until the handler itself exits —
// this is the known weakness hard mode exists to
// close.
type Soft struct {
	registry *handlers.Registry
}

// NewSoft constructs a Soft executor dispatching through registry.
func NewSoft(registry *handlers.Registry) *Soft {
	return &Soft{registry: registry}
}

// Run implements Interface.
func (s *Soft) Run(ctx context.Context, job Job) Result {
	fn, err := s.registry.Lookup(job.Handler)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: %w", err)}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if job.Lifetime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Lifetime)
		defer cancel()
	}

	type outcome struct {
		out []byte
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		out, err := fn(runCtx, json.RawMessage(job.Args), json.RawMessage(job.Kwargs))
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if deadline, ok := runCtx.Deadline(); ok && !time.Now().Before(deadline) {
			return Result{TimedOut: true, Err: ErrTimeout}
		}
		return Result{Output: o.out, Err: o.err}
	case <-runCtx.Done():
		log.WARNING.Printf("soft executor: task %s exceeded lifetime, handler %q left running", job.TaskID, job.Handler)
		return Result{TimedOut: true, Err: ErrTimeout}
	}
}
