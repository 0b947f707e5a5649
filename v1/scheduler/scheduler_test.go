package scheduler_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EliseyGodX/SchedulerGodX/v1/scheduler"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	s := scheduler.New()
	var fired atomic.Bool
	done := make(chan struct{})

	s.Schedule("t1", 10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.True(t, fired.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduleNonPositiveDelayFiresImmediately(t *testing.T) {
	s := scheduler.New()
	done := make(chan struct{})
	s.Schedule("t1", 0, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := scheduler.New()
	var fired atomic.Bool

	s.Schedule("t1", 50*time.Millisecond, func() { fired.Store(true) })
	require.Equal(t, 1, s.Pending())

	s.Cancel("t1")
	assert.Equal(t, 0, s.Pending())

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	s := scheduler.New()
	done := make(chan struct{})
	s.Schedule("t1", 5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.NotPanics(t, func() { s.Cancel("t1") })
}

func TestRescheduleReplacesPriorTimer(t *testing.T) {
	s := scheduler.New()
	var mu sync.Mutex
	var fireCount int

	s.Schedule("t1", 200*time.Millisecond, func() {
		mu.Lock()
		fireCount++
		mu.Unlock()
	})
	done := make(chan struct{})
	s.Schedule("t1", 5*time.Millisecond, func() {
		mu.Lock()
		fireCount++
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fireCount)
}
