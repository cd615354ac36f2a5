// Package simtimer implements a deterministic virtual clock satisfying
// hwtimer.Timer, for use by tests and the example binaries in place of the
// real high-frequency timer peripheral (spec §9: "property-test with a
// deterministic seed" applies equally to time). Time only advances when
// the caller calls Advance; nothing here touches the wall clock.
package simtimer

import (
	"github.com/marinet/mari/hwtimer"
)

type entry struct {
	handle    hwtimer.Handle
	fireAt    int64
	period    int64 // 0 for one-shot
	cb        func(firedAtUS int64)
	cancelled bool
}

// Timer is a virtual microsecond clock. The zero value is not usable; use
// New.
type Timer struct {
	now     int64
	nextID  hwtimer.Handle
	pending []*entry
}

// New creates a Timer starting at t0 microseconds.
func New(t0 int64) *Timer {
	return &Timer{now: t0}
}

// Now returns the current virtual time.
func (t *Timer) Now() int64 { return t.now }

func (t *Timer) schedule(fireAt, period int64, cb func(int64)) hwtimer.Handle {
	t.nextID++
	e := &entry{handle: t.nextID, fireAt: fireAt, period: period, cb: cb}
	t.pending = append(t.pending, e)
	return e.handle
}

// SetOneshot implements hwtimer.Timer.
func (t *Timer) SetOneshot(ref, offset int64, cb func(int64)) hwtimer.Handle {
	return t.schedule(ref+offset, 0, cb)
}

// SetPeriodic implements hwtimer.Timer.
func (t *Timer) SetPeriodic(period int64, cb func(int64)) hwtimer.Handle {
	return t.schedule(t.now+period, period, cb)
}

// Cancel implements hwtimer.Timer.
func (t *Timer) Cancel(h hwtimer.Handle) {
	for _, e := range t.pending {
		if e.handle == h {
			e.cancelled = true
		}
	}
}

// Adjust implements hwtimer.Timer.
func (t *Timer) Adjust(h hwtimer.Handle, deltaUS int64) {
	for _, e := range t.pending {
		if e.handle == h && !e.cancelled {
			e.fireAt += deltaUS
		}
	}
}

// Advance moves the virtual clock forward by deltaUS, firing every
// pending callback whose fire time is at or before the new now (including
// any already overdue), in fire-time order; callbacks with equal fire
// times run in the order they were scheduled. Periodic entries reschedule
// themselves before their callback runs, so a callback that itself calls Adjust affects the *next*
// occurrence, matching the real peripheral's single active compare value.
func (t *Timer) Advance(deltaUS int64) {
	target := t.now + deltaUS
	for {
		t.compact()
		idx := -1
		var earliest int64
		for i, e := range t.pending {
			if e.cancelled || e.fireAt > target {
				continue
			}
			if idx == -1 || e.fireAt < earliest {
				idx = i
				earliest = e.fireAt
			}
		}
		if idx == -1 {
			break
		}
		e := t.pending[idx]
		t.now = e.fireAt
		if e.period > 0 {
			e.fireAt += e.period
		} else {
			e.cancelled = true
		}
		e.cb(t.now)
	}
	t.now = target
}

// compact drops cancelled one-shot entries so the pending list does not
// grow without bound across a long-running simulation.
func (t *Timer) compact() {
	out := t.pending[:0]
	for _, e := range t.pending {
		if e.cancelled && e.period == 0 {
			continue
		}
		out = append(out, e)
	}
	t.pending = out
}

// PendingCount reports the number of live (non-cancelled) scheduled
// callbacks, for diagnostics and tests.
func (t *Timer) PendingCount() int {
	n := 0
	for _, e := range t.pending {
		if !e.cancelled {
			n++
		}
	}
	return n
}
