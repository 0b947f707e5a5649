package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/brokers"
	"github.com/EliseyGodX/SchedulerGodX/v1/config"
	"github.com/EliseyGodX/SchedulerGodX/v1/executor"
	"github.com/EliseyGodX/SchedulerGodX/v1/handlers"
	"github.com/EliseyGodX/SchedulerGodX/v1/service"
	"github.com/EliseyGodX/SchedulerGodX/v1/store"
	"github.com/EliseyGodX/SchedulerGodX/v1/tasks"
)

type fakeBroker struct {
	mu        sync.Mutex
	published []tasks.Envelope
}

func (f *fakeBroker) Publish(e tasks.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, e)
	return nil
}
func (f *fakeBroker) StartConsuming(string, int, brokers.TaskProcessor) (bool, error) {
	return false, nil
}
func (f *fakeBroker) StopConsuming() {}
func (f *fakeBroker) GetOne() (tasks.Envelope, bool, func(bool) error, error) {
	return tasks.Envelope{}, false, nil, nil
}

func (f *fakeBroker) last() (tasks.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return tasks.Envelope{}, false
	}
	return f.published[len(f.published)-1], true
}

func newTestCore(t *testing.T) (*service.Core, *store.Store, *fakeBroker) {
	t.Helper()
	s, err := store.Open("file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := handlers.NewRegistry()
	handlers.RegisterBuiltins(reg)
	soft := executor.NewSoft(reg)

	broker := &fakeBroker{}
	core := service.New(config.Default(), s, broker, soft, nil)
	return core, s, broker
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSubmitTaskCompletesAndReplies(t *testing.T) {
	core, s, broker := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1"}))
	require.NoError(t, core.SubmitTask(ctx, store.Task{
		ID: "t1", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now(), Task: "noop", Lifetime: 2,
	}))

	waitFor(t, time.Second, func() {
		_, ok := broker.last()
		return ok
	})

	env, ok := broker.last()
	require.True(t, ok)
	assert.Equal(t, tasks.Info, env.Type)

	rows, err := s.GetUnfulfilled(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSubmitTaskTimesOutAndReportsError(t *testing.T) {
	core, s, broker := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1"}))
	require.NoError(t, core.SubmitTask(ctx, store.Task{
		ID: "t2", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now(), Task: "busy_spin",
		TaskArgs: tasks.EncodeArgs([]byte(`[1]`)), Lifetime: 1,
	}))

	waitFor(t, 2*time.Second, func() {
		_, ok := broker.last()
		return ok
	})

	env, ok := broker.last()
	require.True(t, ok)
	assert.Equal(t, tasks.Error, env.Type)
}

func TestRecoverMarksOrphanForUnknownClient(t *testing.T) {
	core, s, _ := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertTask(ctx, store.Task{
		ID: "t3", Client: "ghost", Status: store.StatusWaiting,
		TimeToStart: time.Now().Add(time.Hour), Task: "noop", Lifetime: 1,
	}))

	require.NoError(t, core.Recover(ctx))

	rows, err := s.GetUnfulfilled(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecoverMarksOverdueWithoutEnableOverdue(t *testing.T) {
	core, s, broker := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1", EnableOverdue: false}))
	require.NoError(t, s.InsertTask(ctx, store.Task{
		ID: "t4", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now().Add(-time.Hour), Task: "noop", Lifetime: 1,
	}))

	require.NoError(t, core.Recover(ctx))
	time.Sleep(20 * time.Millisecond)

	_, published := broker.last()
	assert.False(t, published)

	rows, err := s.GetUnfulfilled(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecoverReArmsOverdueWithEnableOverdue(t *testing.T) {
	core, s, broker := newTestCore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1", EnableOverdue: true}))
	require.NoError(t, s.InsertTask(ctx, store.Task{
		ID: "t5", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now().Add(-time.Hour), Task: "noop", Lifetime: 1,
	}))

	require.NoError(t, core.Recover(ctx))

	waitFor(t, time.Second, func() {
		_, ok := broker.last()
		return ok
	})
	env, ok := broker.last()
	require.True(t, ok)
	assert.Equal(t, tasks.Info, env.Type)
}
