package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndGetUnfulfilled(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1", EnableOverdue: false}))

	task := store.Task{
		ID: "t1", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now(), Task: "noop", Lifetime: 2,
	}
	require.NoError(t, s.InsertTask(ctx, task))

	err := s.InsertTask(ctx, task)
	assert.ErrorIs(t, err, store.ErrDuplicateTaskID)

	rows, err := s.GetUnfulfilled(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].ID)
}

func TestUpdateStatusTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1"}))
	require.NoError(t, s.InsertTask(ctx, store.Task{
		ID: "t2", Client: "c1", Status: store.StatusWaiting,
		TimeToStart: time.Now(), Task: "noop", Lifetime: 1,
	}))

	require.NoError(t, s.UpdateStatus(ctx, "t2", store.StatusWork))
	require.NoError(t, s.UpdateStatus(ctx, "t2", store.StatusCompleted))

	err := s.UpdateStatus(ctx, "t2", store.StatusWork)
	assert.ErrorIs(t, err, store.ErrIllegalTransition)
}

func TestAddClientIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1", EnableOverdue: false}))
	require.NoError(t, s.AddClient(ctx, store.Client{Name: "c1", EnableOverdue: true}))

	clients, err := s.GetClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.True(t, clients[0].EnableOverdue)
}
