package brokers

import (
	"context"
	"errors"
	"time"

	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

// ErrReplyTimeout is returned by ReplyWaiter.Wait when ctx is done before a
// matching reply arrives.
var ErrReplyTimeout = errors.New("brokers: timed out waiting for reply")

// ReplyWaiter implements the client side's synchronous reply-matching
// poll: a client waiting on a specific correlation id does not consume
// another client's reply. It repeatedly basic.gets the reply queue, and
// for every message that does not match the id we're waiting on, nacks
// it with requeue=true so the next waiter (or a later call of our own)
// can still claim it, instead of discarding it or blocking the queue.
type ReplyWaiter struct {
	broker Interface
	poll   time.Duration
}

// NewReplyWaiter constructs a ReplyWaiter polling broker at the given
// interval between empty basic.get results.
func NewReplyWaiter(broker Interface, poll time.Duration) *ReplyWaiter {
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &ReplyWaiter{broker: broker, poll: poll}
}

// Wait blocks until a reply envelope with the given correlation id is
// observed on the reply queue, ctx is cancelled, or ctx's deadline passes.
// Every non-matching message encountered along the way is nacked with
// requeue=true so it remains available to whichever waiter (or later call)
// is actually looking for it.
func (w *ReplyWaiter) Wait(ctx context.Context, id string) (tasks.Envelope, error) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		envelope, ok, settle, err := w.broker.GetOne()
		if err != nil {
			return tasks.Envelope{}, err
		}
		if ok {
			if envelope.ID == id {
				if err := settle(true); err != nil {
					return tasks.Envelope{}, err
				}
				return envelope, nil
			}
			if err := settle(false); err != nil {
				return tasks.Envelope{}, err
			}
		}

		select {
		case <-ctx.Done():
			return tasks.Envelope{}, ErrReplyTimeout
		case <-ticker.C:
		}
	}
}
