package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/registry"
	"github.com/EliseyGodX/SchedulerGodX/v1/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file::memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := registry.New(s)
	require.NoError(t, r.Append(ctx, registry.Client{Name: "c1", EnableOverdue: true}))
	assert.True(t, r.Contains("c1"))
	assert.False(t, r.Contains("unknown"))

	fresh := registry.New(s)
	require.NoError(t, fresh.Load(ctx))
	got, ok := fresh.Get("c1")
	require.True(t, ok)
	assert.True(t, got.EnableOverdue)
}

func TestAppendIsIdempotentMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := registry.New(s)

	require.NoError(t, r.Append(ctx, registry.Client{Name: "c1", EnableOverdue: false}))
	require.NoError(t, r.Append(ctx, registry.Client{Name: "c1", EnableOverdue: true}))

	got, ok := r.Get("c1")
	require.True(t, ok)
	assert.True(t, got.EnableOverdue)
}
