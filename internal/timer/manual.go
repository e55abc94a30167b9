package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance. Callbacks run synchronously on
// the goroutine calling Advance, in due order.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	m     *Manual
	due   time.Duration
	seq   int
	f     func()
	fired bool
	done  bool
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of armed tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// NextDue returns the time until the earliest armed task.
func (m *Manual) NextDue() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return 0, false
	}
	return m.tasks[0].due - m.now, true
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Task {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{m: m, due: m.now + d, seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	sort.Slice(m.tasks, func(i, j int) bool {
		if m.tasks[i].due != m.tasks[j].due {
			return m.tasks[i].due < m.tasks[j].due
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	return t
}

// Advance moves the clock forward by d, firing every task that comes due.
// Tasks armed by a callback fire within the same Advance if they are due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	end := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.tasks) == 0 || m.tasks[0].due > end {
			m.now = end
			m.mu.Unlock()
			return
		}
		t := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.now = t.due
		t.fired = true
		m.mu.Unlock()

		t.f()
	}
}

func (t *manualTask) Stop() bool {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.fired || t.done {
		return false
	}
	t.done = true
	for i, other := range m.tasks {
		if other == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	return true
}
