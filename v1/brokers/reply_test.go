package brokers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/brokers"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

// fakeReplyBroker queues canned GetOne results (one tasks.Envelope per
// call) and records which ids were acked vs nacked-requeued via the
// settle closure ReplyWaiter calls back.
type fakeReplyBroker struct {
	mu     sync.Mutex
	queue  []tasks.Envelope
	acked  []string
	nacked []string
}

func (f *fakeReplyBroker) Publish(tasks.Envelope) error { return nil }
func (f *fakeReplyBroker) StartConsuming(string, int, brokers.TaskProcessor) (bool, error) {
	return false, nil
}
func (f *fakeReplyBroker) StopConsuming() {}

func (f *fakeReplyBroker) GetOne() (tasks.Envelope, bool, func(bool) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return tasks.Envelope{}, false, nil, nil
	}
	envelope := f.queue[0]
	f.queue = f.queue[1:]
	settle := func(ack bool) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if ack {
			f.acked = append(f.acked, envelope.ID)
		} else {
			f.nacked = append(f.nacked, envelope.ID)
		}
		return nil
	}
	return envelope, true, settle, nil
}

func TestReplyWaiterAcksMatchAndNacksRequeuesOthers(t *testing.T) {
	broker := &fakeReplyBroker{
		queue: []tasks.Envelope{
			{ID: "A", Type: tasks.Info},
			{ID: "C", Type: tasks.Info},
			{ID: "B", Type: tasks.Info},
		},
	}
	waiter := brokers.NewReplyWaiter(broker, time.Millisecond)

	envelope, err := waiter.Wait(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, "B", envelope.ID)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, []string{"B"}, broker.acked)
	assert.ElementsMatch(t, []string{"A", "C"}, broker.nacked)
}

func TestReplyWaiterTimesOutWhenNoMatchArrives(t *testing.T) {
	broker := &fakeReplyBroker{
		queue: []tasks.Envelope{{ID: "A", Type: tasks.Info}},
	}
	waiter := brokers.NewReplyWaiter(broker, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waiter.Wait(ctx, "B")
	assert.ErrorIs(t, err, brokers.ErrReplyTimeout)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Equal(t, []string{"A"}, broker.nacked)
	assert.Empty(t, broker.acked)
}
