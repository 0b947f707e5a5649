// Package service implements ServiceCore: the composition
// root that wires BrokerChannel, TaskStore, ClientRegistry, Scheduler,
// Executor and Dispatcher together, drives startup recovery, and owns the
// consume-loop lifecycle.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/EliseyGodX/SchedulerGodX/v1/brokers"
	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/dispatcher"
	"github.com/EliseyGodX/SchedulerGodX/v1/executor"
	"github.com/EliseyGodX/SchedulerGodX/v1/log"
	"github.com/EliseyGodX/SchedulerGodX/v1/registry"
	"github.com/EliseyGodX/SchedulerGodX/v1/scheduler"
	"github.com/EliseyGodX/SchedulerGodX/v1/store"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

// Core composes every component into the running service.
type Core struct {
	cfg       *config.Config
	store     *store.Store
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	broker    brokers.Interface
	soft      executor.Interface
	hard      executor.Interface
	dispatch  *dispatcher.Dispatcher
}

// New wires Core from already-constructed components. hard may be nil if
// the deployment never runs hard-mode tasks; a hard=true TASK then fails
// fast with ERROR_IN_TASK instead of panicking.
func New(cfg *config.Config, s *store.Store, broker brokers.Interface, soft, hard executor.Interface) *Core {
	c := &Core{
		cfg:       cfg,
		store:     s,
		registry:  registry.New(s),
		scheduler: scheduler.New(),
		broker:    broker,
		soft:      soft,
		hard:      hard,
	}
	c.dispatch = dispatcher.New(replyPort{broker}, c.registry, c)
	return c
}

type replyPort struct{ broker brokers.Interface }

func (r replyPort) Publish(e tasks.Envelope) error { return r.broker.Publish(e) }

// SubmitTask implements dispatcher.TaskSink: persist then arm, so a task
// row always exists before it is ever scheduled.
func (c *Core) SubmitTask(ctx context.Context, t store.Task) error {
	if err := c.store.InsertTask(ctx, t); err != nil {
		return fmt.Errorf("service: insert task: %w", err)
	}
	c.arm(t)
	return nil
}

func (c *Core) arm(t store.Task) {
	delay := time.Until(t.TimeToStart)
	if delay < 0 {
		delay = 0
	}
	c.scheduler.Schedule(t.ID, delay, func() { c.fire(t) })
}

// fire runs when the Scheduler activates a task: transition WAITING→WORK
// under the store's compare-and-swap (invariant I3: at most one in-flight
// execution per task id — if another path already moved the row past
// WAITING, the CAS fails and fire is a no-op), run it under the
// appropriate isolation mode, then publish the single terminal reply.
func (c *Core) fire(t store.Task) {
	ctx := context.Background()

	if err := c.store.UpdateStatus(ctx, t.ID, store.StatusWork); err != nil {
		log.WARNING.Printf("task %s: skip firing, cannot transition to WORK: %v", t.ID, err)
		return
	}

	args, err := tasks.DecodeArgs(t.TaskArgs)
	if err != nil {
		c.finish(ctx, t, store.StatusError, tasks.ErrorInTask, fmt.Sprintf("decode args: %v", err))
		return
	}
	kwargs, err := tasks.DecodeArgs(t.TaskKwargs)
	if err != nil {
		c.finish(ctx, t, store.StatusError, tasks.ErrorInTask, fmt.Sprintf("decode kwargs: %v", err))
		return
	}

	exec := c.soft
	if t.Hard {
		exec = c.hard
	}
	if exec == nil {
		c.finish(ctx, t, store.StatusError, tasks.ErrorInTask, "no executor configured for this isolation mode")
		return
	}

	result := exec.Run(ctx, executor.Job{
		TaskID:   t.ID,
		Handler:  t.Task,
		Args:     args,
		Kwargs:   kwargs,
		Lifetime: time.Duration(t.Lifetime) * time.Second,
	})

	switch {
	case result.TimedOut:
		c.finish(ctx, t, store.StatusError, tasks.TaskTimeout,
			fmt.Sprintf("task %s was canceled due to an error timeout", t.ID))
	case result.Err != nil:
		c.finish(ctx, t, store.StatusError, tasks.ErrorInTask, fmt.Sprintf("task %s: %v", t.ID, result.Err))
	default:
		c.completeOK(ctx, t)
	}
}

func (c *Core) completeOK(ctx context.Context, t store.Task) {
	if err := c.store.UpdateStatus(ctx, t.ID, store.StatusCompleted); err != nil {
		log.ERROR.Printf("task %s: update status to COMPLETED: %v", t.ID, err)
	}
	reply, err := tasks.NewInfoOK(t.ID, t.Client)
	if err != nil {
		log.ERROR.Printf("task %s: build reply: %v", t.ID, err)
		return
	}
	if err := c.broker.Publish(reply); err != nil {
		log.ERROR.Printf("task %s: publish reply: %v", t.ID, err)
	}
}

func (c *Core) finish(ctx context.Context, t store.Task, status store.TaskStatus, code tasks.ErrorCode, message string) {
	if err := c.store.UpdateStatus(ctx, t.ID, status); err != nil {
		log.ERROR.Printf("task %s: update status to %s: %v", t.ID, status, err)
	}
	reply, err := tasks.NewError(t.ID, t.Client, code, message)
	if err != nil {
		log.ERROR.Printf("task %s: build error reply: %v", t.ID, err)
		return
	}
	if err := c.broker.Publish(reply); err != nil {
		log.ERROR.Printf("task %s: publish error reply: %v", t.ID, err)
	}
}

// Recover loads clients, then for every unfulfilled row decides
// ORPHAN / OVERDUE / re-arm.
func (c *Core) Recover(ctx context.Context) error {
	if err := c.registry.Load(ctx); err != nil {
		return fmt.Errorf("service: load registry: %w", err)
	}

	rows, err := c.store.GetUnfulfilled(ctx)
	if err != nil {
		return fmt.Errorf("service: get unfulfilled: %w", err)
	}

	now := time.Now()
	for _, row := range rows {
		if row.Status == store.StatusWork {
			if err := c.store.UpdateStatus(ctx, row.ID, store.StatusWaiting); err != nil {
				log.ERROR.Printf("task %s: re-arm WORK->WAITING: %v", row.ID, err)
				continue
			}
			row.Status = store.StatusWaiting
		}

		client, ok := c.registry.Get(row.Client)
		if !ok {
			if err := c.store.UpdateStatus(ctx, row.ID, store.StatusOrphan); err != nil {
				log.ERROR.Printf("task %s: mark ORPHAN: %v", row.ID, err)
			}
			continue
		}

		if row.TimeToStart.Before(now) && !client.EnableOverdue {
			if err := c.store.UpdateStatus(ctx, row.ID, store.StatusOverdue); err != nil {
				log.ERROR.Printf("task %s: mark OVERDUE: %v", row.ID, err)
			}
			continue
		}

		c.arm(row)
	}
	return nil
}

// Run starts the broker consume loop, blocking until it returns (either
// because StopConsuming was called, or the connection failed — single-
// writer assumption: the process then terminates rather than
// attempting to run degraded).
func (c *Core) Run(consumerTag string, concurrency int) error {
	log.INFO.Print("service: starting consume loop")
	_, err := c.broker.StartConsuming(consumerTag, concurrency, c.dispatch)
	return err
}

// Stop signals the consume loop to return and releases the store handle.
func (c *Core) Stop() error {
	c.broker.StopConsuming()
	return c.store.Close()
}
