package scheduler

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled one-shot callback
type Task interface {
	// Cancel stops the task. It returns false if the callback already fired
	// or was already cancelled. A cancelled task never fires, but a callback
	// that has already started executing cannot be interrupted; callers must
	// tolerate that race (idempotent callbacks).
	Cancel() bool
}

// Ticker is a handle to a periodic callback
type Ticker interface {
	Stop()
}

// Scheduler provides the current time and callback scheduling. All shared
// state that reacts to time goes through this interface so tests can drive
// a simulated clock.
type Scheduler interface {
	Now() time.Time
	// Schedule runs fn once after d elapses
	Schedule(d time.Duration, fn func()) Task
	// Every runs fn repeatedly every d until the ticker is stopped
	Every(d time.Duration, fn func()) Ticker
}

// Real is the wall-clock Scheduler used in production
type Real struct{}

// NewReal creates a wall-clock scheduler
func NewReal() *Real {
	return &Real{}
}

func (r *Real) Now() time.Time {
	return time.Now()
}

func (r *Real) Schedule(d time.Duration, fn func()) Task {
	return &realTask{timer: time.AfterFunc(d, fn)}
}

func (r *Real) Every(d time.Duration, fn func()) Ticker {
	t := &realTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.ticker.C:
				fn()
			case <-t.done:
				return
			}
		}
	}()
	return t
}

type realTask struct {
	timer *time.Timer
}

func (t *realTask) Cancel() bool {
	return t.timer.Stop()
}

type realTicker struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}
