package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by explicit Advance calls. It exists for
// tests that need deterministic expiry without sleeping.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tasks   []*manualTask
	tickers []*manualTicker
}

// NewManual creates a manual scheduler starting at the given instant
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Schedule(d time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{
		sched: m,
		at:    m.now.Add(d),
		fn:    fn,
	}
	m.tasks = append(m.tasks, task)
	return task
}

func (m *Manual) Every(d time.Duration, fn func()) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker := &manualTicker{
		sched:    m,
		interval: d,
		next:     m.now.Add(d),
		fn:       fn,
	}
	m.tickers = append(m.tickers, ticker)
	return ticker
}

// Advance moves the clock forward and fires every due callback in deadline
// order. Callbacks run on the calling goroutine, outside the scheduler lock.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	type firing struct {
		at time.Time
		fn func()
	}
	var due []firing

	remaining := m.tasks[:0]
	for _, task := range m.tasks {
		if !task.cancelled && !task.at.After(now) {
			task.fired = true
			due = append(due, firing{task.at, task.fn})
		} else if !task.cancelled {
			remaining = append(remaining, task)
		}
	}
	m.tasks = remaining

	for _, ticker := range m.tickers {
		for !ticker.stopped && !ticker.next.After(now) {
			due = append(due, firing{ticker.next, ticker.fn})
			ticker.next = ticker.next.Add(ticker.interval)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, f := range due {
		f.fn()
	}
}

// PendingTasks reports how many one-shot tasks are still scheduled
func (m *Manual) PendingTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.tasks {
		if !task.cancelled {
			n++
		}
	}
	return n
}

type manualTask struct {
	sched     *Manual
	at        time.Time
	fn        func()
	fired     bool
	cancelled bool
}

func (t *manualTask) Cancel() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.fired || t.cancelled {
		return false
	}
	t.cancelled = true
	// Compact the task list so cancelled entries do not accumulate
	tasks := t.sched.tasks[:0]
	for _, task := range t.sched.tasks {
		if task != t {
			tasks = append(tasks, task)
		}
	}
	t.sched.tasks = tasks
	return true
}

type manualTicker struct {
	sched    *Manual
	interval time.Duration
	next     time.Time
	fn       func()
	stopped  bool
}

func (t *manualTicker) Stop() {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.stopped = true
}
