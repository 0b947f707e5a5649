// Package scheduler implements the delay-based activation timer layer.
// Each task gets a one-shot wall-clock timer; no ecosystem
// scheduling dependency in the reference corpus targets arbitrary one-shot
// per-task deadlines (the corpus's schedulers are either cron-expression
// based, unsuited to an arbitrary runtime-computed delay, or tied to a
// reconciliation loop's own domain), so this is built directly on
// time.AfterFunc, the idiomatic Go primitive for the job.
package scheduler

import (
	"sync"
	"time"
)

// state is a timer's lifecycle: ARMED → FIRED → (handed to
// Executor) or ARMED → CANCELLED.
type state int

const (
	armed state = iota
	fired
	cancelled
)

type entry struct {
	timer *time.Timer
	state state
}

// Scheduler arms and cancels one-shot per-task timers.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New constructs an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{entries: make(map[string]*entry)}
}

// Schedule arms a one-shot timer for taskID that fires onFire after delay.
// delay<=0 fires on the next tick. If taskID already has
// an armed timer, it is replaced (the prior timer is stopped first).
//
// onFire is called in its own goroutine; it is a no-op if Cancel raced it
// and the task was already cancelled, giving the at-most-once firing
// guarantee the scheduler promises.
func (s *Scheduler) Schedule(taskID string, delay time.Duration, onFire func()) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	if prior, ok := s.entries[taskID]; ok && prior.state == armed {
		prior.timer.Stop()
		prior.state = cancelled
	}
	e := &entry{state: armed}
	s.entries[taskID] = e
	s.mu.Unlock()

	e.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if e.state != armed {
			s.mu.Unlock()
			return
		}
		e.state = fired
		delete(s.entries, taskID)
		s.mu.Unlock()
		onFire()
	})
}

// Cancel best-effort stops taskID's armed timer. A no-op if the timer has
// already fired or there is no armed timer for taskID.
func (s *Scheduler) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[taskID]
	if !ok || e.state != armed {
		return
	}
	e.timer.Stop()
	e.state = cancelled
	delete(s.entries, taskID)
}

// Pending reports how many timers are currently armed, used by tests and
// by graceful-shutdown diagnostics.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
