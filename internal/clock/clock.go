// Package clock narrows github.com/benbjohnson/clock to what room timers
// need, and adds a stepping mock so tests can drive those timers
// deterministically.
package clock

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a cancellable deferred callback.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and one-shot deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct {
	clock.Clock
}

// Real returns the wall clock.
func Real() Clock {
	return wallClock{Clock: clock.New()}
}

func (w wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return w.Clock.AfterFunc(d, f)
}

// Mock wraps clock.Mock. The library runs each due AfterFunc callback on its
// own goroutine, so Advance moves time in steps and waits after each one
// until every callback that fell due has returned. Timers armed by those
// callbacks are then visible to the next step.
type Mock struct {
	mock *clock.Mock
	step time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	timers map[*mockTimer]struct{}
}

type mockTimer struct {
	owner *Mock
	timer *clock.Timer
	due   time.Time
	fired bool
}

// NewMock returns a mock clock set to start. step bounds how far a single
// move of the underlying clock goes; it must not exceed the shortest delay
// a callback schedules.
func NewMock(start time.Time, step time.Duration) *Mock {
	mock := clock.NewMock()
	mock.Set(start)
	m := &Mock{mock: mock, step: step, timers: make(map[*mockTimer]struct{})}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Mock) Now() time.Time {
	return m.mock.Now()
}

func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	t := &mockTimer{owner: m}
	m.mu.Lock()
	t.due = m.mock.Now().Add(d)
	m.timers[t] = struct{}{}
	m.mu.Unlock()

	t.timer = m.mock.AfterFunc(d, func() {
		m.mu.Lock()
		t.fired = true
		m.mu.Unlock()
		defer m.settle(t)
		f()
	})
	return t
}

// Advance moves the clock forward by d and returns once every callback due
// by then has run.
func (m *Mock) Advance(d time.Duration) {
	target := m.mock.Now().Add(d)
	for {
		m.drain()
		remaining := target.Sub(m.mock.Now())
		if remaining <= 0 {
			return
		}
		m.mock.Add(min(m.step, remaining))
	}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// drain blocks until no timer due at the current time is outstanding.
func (m *Mock) drain() {
	for {
		m.mu.Lock()
		now := m.mock.Now()
		due, unfired := false, false
		for t := range m.timers {
			if t.due.After(now) {
				continue
			}
			due = true
			if !t.fired {
				unfired = true
			}
		}
		switch {
		case !due:
			m.mu.Unlock()
			return
		case unfired:
			m.mu.Unlock()
			// Fires timers armed at or before now that the last move missed.
			m.mock.Add(0)
		default:
			m.cond.Wait()
			m.mu.Unlock()
		}
	}
}

func (m *Mock) settle(t *mockTimer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.timers, t)
	m.cond.Broadcast()
}

func (t *mockTimer) Stop() bool {
	if !t.timer.Stop() {
		return false
	}
	t.owner.settle(t)
	return true
}
