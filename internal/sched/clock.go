package sched

import (
	"time"
)

// The simulated epoch is a fixed date so runs started from different
// wall-clock times compare bit-for-bit.
var simulatedEpoch = time.Date(2019, 11, 9, 8, 15, 0, 0, time.UTC).UnixNano()

type clock struct {
	now     int64 // unix nsec
	heap    *timerHeap
	nextSeq uint64
}

func newClock() *clock {
	return &clock{
		now:  simulatedEpoch,
		heap: newTimerHeap(),
	}
}

func (c *clock) anyWaiting() bool {
	return c.heap.len() > 0
}

// maybefire pops one due timer, if any.
func (c *clock) maybefire() (*Timer, bool) {
	if c.heap.len() == 0 {
		return nil, false
	}
	if c.heap.peek().when <= c.now {
		return c.heap.pop(), true
	}
	return nil, false
}

// advance jumps the clock forward to the minimum pending deadline. Callable
// only when no task is runnable; advancing with nothing registered is a bug.
func (c *clock) advance() {
	t := c.heap.peek().when
	if t <= c.now {
		panic("advancing to a due timer")
	}
	c.now = t
}

func (c *clock) seq() uint64 {
	s := c.nextSeq
	c.nextSeq++
	return s
}

// A Timer fires its handler on the scheduler once the virtual clock reaches
// when. Handlers run without a current task and must not suspend; they
// typically just wake a waiting task.
type Timer struct {
	when    int64
	seq     uint64
	handler func(t *Timer)
	Arg     any

	pos int
}

// NewTimer registers a wake request with the timer queue.
func (s *Scheduler) NewTimer(handler func(t *Timer), arg any, when int64) *Timer {
	t := &Timer{
		when:    when,
		seq:     s.clock.seq(),
		handler: handler,
		Arg:     arg,
		pos:     -1,
	}
	s.clock.heap.add(t)
	return t
}

// Reset re-arms the timer for a new deadline, reporting whether it was still
// pending. A reset timer fires after timers already registered for the same
// deadline.
func (t *Timer) Reset(s *Scheduler, when int64) bool {
	stopped := t.pos != -1
	if stopped {
		s.clock.heap.adjust(t, when, s.clock.seq())
	} else {
		t.when = when
		t.seq = s.clock.seq()
		s.clock.heap.add(t)
	}
	return stopped
}

// Stop cancels the timer, reporting whether it was still pending. Tasks that
// own a pending timer must Stop it when they abandon the wait so no stale
// wakeup fires later.
func (t *Timer) Stop(s *Scheduler) bool {
	stopped := t.pos != -1
	if stopped {
		s.clock.heap.remove(t)
	}
	return stopped
}
