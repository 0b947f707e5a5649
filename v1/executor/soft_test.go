package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/executor"
	"github.com/EliseyGodX/SchedulerGodX/v1/handlers"
)

func newRegistry() *handlers.Registry {
	r := handlers.NewRegistry()
	handlers.RegisterBuiltins(r)
	return r
}

func TestSoftRunNoop(t *testing.T) {
	soft := executor.NewSoft(newRegistry())
	res := soft.Run(context.Background(), executor.Job{
		TaskID: "t1", Handler: "noop", Lifetime: time.Second,
	})
	require.NoError(t, res.Err)
	assert.False(t, res.TimedOut)
}

func TestSoftRunUnknownHandler(t *testing.T) {
	soft := executor.NewSoft(newRegistry())
	res := soft.Run(context.Background(), executor.Job{
		TaskID: "t1", Handler: "does-not-exist", Lifetime: time.Second,
	})
	assert.Error(t, res.Err)
}

func TestSoftRunHandlerError(t *testing.T) {
	soft := executor.NewSoft(newRegistry())
	res := soft.Run(context.Background(), executor.Job{
		TaskID: "t1", Handler: "divide_by_zero", Lifetime: time.Second,
	})
	assert.Error(t, res.Err)
}

func TestSoftRunTimesOutOnNonCooperativeHandler(t *testing.T) {
	soft := executor.NewSoft(newRegistry())
	res := soft.Run(context.Background(), executor.Job{
		TaskID: "t1", Handler: "busy_spin", Args: []byte(`[1]`), Lifetime: 20 * time.Millisecond,
	})
	assert.True(t, res.TimedOut)
	assert.ErrorIs(t, res.Err, executor.ErrTimeout)
}

func TestSoftRunSleepRespectsContext(t *testing.T) {
	soft := executor.NewSoft(newRegistry())
	res := soft.Run(context.Background(), executor.Job{
		TaskID: "t1", Handler: "sleep", Args: []byte(`[1]`), Lifetime: 5 * time.Millisecond,
	})
	assert.True(t, res.TimedOut)
}
