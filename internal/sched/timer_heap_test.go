package sched

import (
	"slices"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestTimerHeap(t *testing.T) {
	baseTime := time.Date(2010, 5, 1, 10, 3, 1, 100, time.UTC).UnixNano()

	heap := newTimerHeap()
	first := &Timer{when: baseTime + int64(0*time.Second), seq: 0, pos: -1}
	heap.add(first)
	if first.pos != 0 {
		t.Errorf("expected pos 0, got %d", first.pos)
	}
	a := &Timer{when: baseTime + int64(1*time.Second), seq: 1, pos: -1}
	heap.add(a)
	heap.add(&Timer{when: baseTime + int64(2*time.Second), seq: 2, pos: -1})
	b := &Timer{when: baseTime + int64(3*time.Second), seq: 3, pos: -1}
	heap.add(b)
	if l := heap.len(); l != 4 {
		t.Errorf("expected heap.len() = 4, got %d", l)
	}

	if e := heap.pop(); e.when != baseTime+int64(0*time.Second) {
		t.Errorf("expected t+0s, got %v", e.when-baseTime)
	}
	if e := heap.peek(); e.when != baseTime+int64(1*time.Second) {
		t.Errorf("expected t+1s, got %v", e.when-baseTime)
	}

	heap.adjust(a, baseTime+int64(4*time.Second), 4)

	if e := heap.pop(); e.when != baseTime+int64(2*time.Second) {
		t.Errorf("expected t+2s, got %v", e.when-baseTime)
	}

	heap.remove(b)
	heap.add(&Timer{when: baseTime + int64(5*time.Second), seq: 5, pos: -1})

	if e := heap.pop(); e.when != baseTime+int64(4*time.Second) {
		t.Errorf("expected t+4s, got %v", e.when-baseTime)
	}

	if e := heap.pop(); e.when != baseTime+int64(5*time.Second) {
		t.Errorf("expected t+5s, got %v", e.when-baseTime)
	}
}

func TestTimerHeapEqualDeadlines(t *testing.T) {
	heap := newTimerHeap()
	when := int64(100)
	for seq := uint64(0); seq < 8; seq++ {
		heap.add(&Timer{when: when, seq: seq, pos: -1})
	}
	for seq := uint64(0); seq < 8; seq++ {
		if got := heap.pop(); got.seq != seq {
			t.Errorf("expected seq %d, got %d", seq, got.seq)
		}
	}
}

func TestCheckTimerHeap(t *testing.T) {
	rapid.Check(t, checkTimerHeap)
}

func checkTimerHeap(t *rapid.T) {
	heap := newTimerHeap()
	var model []*Timer
	var nextSeq uint64

	earlier := func(a, b *Timer) bool {
		if a.when != b.when {
			return a.when < b.when
		}
		return a.seq < b.seq
	}

	actions := make(map[string]func(t *rapid.T))

	actions["add"] = func(t *rapid.T) {
		when := rapid.Int64().Draw(t, "when")
		timer := &Timer{when: when, seq: nextSeq, pos: -1}
		nextSeq++
		model = append(model, timer)
		heap.add(timer)
	}

	actions["peek"] = func(t *rapid.T) {
		if heap.len() == 0 {
			t.Skip()
		}
		got := heap.peek()
		for _, other := range model {
			if earlier(other, got) {
				t.Errorf("found earlier timer (%d, %d) than returned (%d, %d)",
					other.when, other.seq, got.when, got.seq)
			}
		}
	}

	actions["pop"] = func(t *rapid.T) {
		if heap.len() == 0 {
			t.Skip()
		}
		got := heap.pop()
		for _, other := range model {
			if earlier(other, got) {
				t.Errorf("found earlier timer (%d, %d) than returned (%d, %d)",
					other.when, other.seq, got.when, got.seq)
			}
		}
		if got.pos != -1 {
			t.Error("expected pos -1 after pop")
		}
		model = slices.DeleteFunc(model, func(timer *Timer) bool { return timer == got })
	}

	actions["adjust"] = func(t *rapid.T) {
		if heap.len() == 0 {
			t.Skip()
		}
		timer := rapid.SampledFrom(model).Draw(t, "timer")
		when := rapid.Int64().Draw(t, "when")
		heap.adjust(timer, when, nextSeq)
		nextSeq++
	}

	actions["remove"] = func(t *rapid.T) {
		if heap.len() == 0 {
			t.Skip()
		}
		timer := rapid.SampledFrom(model).Draw(t, "timer")
		heap.remove(timer)
		if timer.pos != -1 {
			t.Error("expected pos -1 after remove")
		}
		model = slices.DeleteFunc(model, func(other *Timer) bool { return other == timer })
	}

	t.Repeat(actions)
}
