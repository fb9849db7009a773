package sched

import (
	"container/heap"
)

// timers implements heap.Interface
type timers []*Timer

func (h timers) Len() int { return len(h) }

func (h timers) Less(i, j int) bool {
	// Equal deadlines fire in registration order so that runs are
	// reproducible independent of heap internals.
	if h[i].when != h[j].when {
		return h[i].when < h[j].when
	}
	return h[i].seq < h[j].seq
}

func (h timers) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *timers) Push(x any) {
	t := x.(*Timer)
	if t.pos != -1 {
		panic(t.pos)
	}
	t.pos = len(*h)
	*h = append(*h, t)
}

func (h *timers) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	x.pos = -1
	return x
}

type timerHeap struct {
	timers timers
}

func newTimerHeap() *timerHeap {
	return &timerHeap{}
}

func (h *timerHeap) add(t *Timer) {
	heap.Push(&h.timers, t)
}

func (h *timerHeap) adjust(t *Timer, when int64, seq uint64) {
	if t.pos == -1 || h.timers[t.pos] != t {
		panic(t)
	}
	t.when = when
	t.seq = seq
	heap.Fix(&h.timers, t.pos)
}

func (h *timerHeap) remove(t *Timer) {
	if t.pos == -1 || h.timers[t.pos] != t {
		panic(t)
	}
	heap.Remove(&h.timers, t.pos)
}

func (h *timerHeap) len() int {
	return len(h.timers)
}

func (h *timerHeap) pop() *Timer {
	return heap.Pop(&h.timers).(*Timer)
}

func (h *timerHeap) peek() *Timer {
	return h.timers[0]
}
