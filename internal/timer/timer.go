// Package timer abstracts host timer callbacks so the code that arms them can
// run against the wall clock in production and a manual clock in tests.
package timer

import (
	"sync"
	"time"
)

// Task is a pending callback.
type Task interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the task before it fired.
	Stop() bool
}

// Scheduler arms one-shot callbacks.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// System schedules on the wall clock.
type System struct{}

func (System) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}

// Repeater fires f every interval until stopped.
type Repeater struct {
	mu       sync.Mutex
	s        Scheduler
	interval time.Duration
	f        func()
	task     Task
	stopped  bool
}

// Repeat arms f to fire every interval, first after one interval.
func Repeat(s Scheduler, interval time.Duration, f func()) *Repeater {
	r := &Repeater{s: s, interval: interval, f: f}
	r.mu.Lock()
	r.task = s.AfterFunc(interval, r.fire)
	r.mu.Unlock()
	return r
}

func (r *Repeater) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.task = r.s.AfterFunc(r.interval, r.fire)
	r.mu.Unlock()
	r.f()
}

// Stop cancels the pending tick. A tick already running completes.
func (r *Repeater) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	return r.task.Stop()
}
