package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealScheduleFires(t *testing.T) {
	s := NewReal()
	done := make(chan struct{})

	s.Schedule(5*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task did not fire")
	}
}

func TestRealCancelledTaskNeverFires(t *testing.T) {
	s := NewReal()
	var fired atomic.Bool

	task := s.Schedule(20*time.Millisecond, func() { fired.Store(true) })
	require.True(t, task.Cancel())

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load(), "cancelled task must never fire")
	assert.False(t, task.Cancel(), "second cancel reports no-op")
}

func TestRealTickerStops(t *testing.T) {
	s := NewReal()
	var ticks atomic.Int32

	ticker := s.Every(5*time.Millisecond, func() { ticks.Add(1) })
	time.Sleep(30 * time.Millisecond)
	ticker.Stop()
	assert.Greater(t, ticks.Load(), int32(0))

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "ticker must not fire after Stop")

	// Stop is idempotent
	ticker.Stop()
}

func TestManualAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)
	assert.Equal(t, start, m.Now())

	var order []int
	m.Schedule(2*time.Hour, func() { order = append(order, 2) })
	m.Schedule(1*time.Hour, func() { order = append(order, 1) })
	late := m.Schedule(10*time.Hour, func() { order = append(order, 3) })

	m.Advance(3 * time.Hour)
	assert.Equal(t, []int{1, 2}, order, "due tasks fire in deadline order")
	assert.Equal(t, start.Add(3*time.Hour), m.Now())
	assert.Equal(t, 1, m.PendingTasks())

	require.True(t, late.Cancel())
	m.Advance(24 * time.Hour)
	assert.Equal(t, []int{1, 2}, order, "cancelled task must never fire")
	assert.Equal(t, 0, m.PendingTasks())
}

func TestManualTicker(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	count := 0
	ticker := m.Every(time.Hour, func() { count++ })

	m.Advance(3*time.Hour + time.Minute)
	assert.Equal(t, 3, count, "one firing per elapsed interval")

	ticker.Stop()
	m.Advance(5 * time.Hour)
	assert.Equal(t, 3, count)
}
