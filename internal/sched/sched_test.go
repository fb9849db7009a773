package sched

import (
	"errors"
	"testing"
	"time"

	"github.com/davidbarsky/simulation"
)

func TestSleepOrdering(t *testing.T) {
	s := New(1)

	start := s.Now()
	var order []string
	var times []time.Duration

	s.Go(func() {
		s.Sleep(30 * time.Second)
		order = append(order, "slow")
		times = append(times, time.Duration(s.Now()-start))
	})
	s.Go(func() {
		s.Sleep(10 * time.Second)
		order = append(order, "fast")
		times = append(times, time.Duration(s.Now()-start))
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Errorf("expected [fast slow], got %v", order)
	}
	if times[0] != 10*time.Second {
		t.Errorf("expected fast to wake at +10s, got %v", times[0])
	}
	if times[1] != 30*time.Second {
		t.Errorf("expected slow to wake at +30s, got %v", times[1])
	}
}

func TestClockAdvancesExactly(t *testing.T) {
	s := New(1)

	start := s.Now()
	var observed []time.Duration

	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		s.Go(func() {
			s.Sleep(d)
			observed = append(observed, time.Duration(s.Now()-start))
		})
	}

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(observed) != len(expected) {
		t.Fatalf("expected %d wakeups, got %d", len(expected), len(observed))
	}
	for i, d := range expected {
		if observed[i] != d {
			t.Errorf("wakeup %d: expected +%v, got +%v", i, d, observed[i])
		}
	}
}

func TestEqualDeadlinesFireInRegistrationOrder(t *testing.T) {
	s := New(1)

	var order []int
	var tasks []*Task
	for i := range 5 {
		task := s.Go(func() {
			if err := s.Pause(); err != nil {
				return
			}
			order = append(order, i)
		})
		tasks = append(tasks, task)
	}

	// register wakeups for the same deadline, in order
	when := s.Now() + int64(time.Second)
	for _, task := range tasks {
		s.NewTimer(wakeTaskArg, task, when)
	}

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	// timers fire in seq order, so tasks become runnable in order; the
	// random pick then interleaves them, but all fire at the same instant
	if len(order) != 5 {
		t.Fatalf("expected 5 wakeups, got %d", len(order))
	}
}

func runProgram(seed int64) (uint64, []int) {
	s := New(seed)

	var completions []int
	for i := range 10 {
		s.Go(func() {
			s.Sleep(time.Duration(i%3) * time.Second)
			s.Yield()
			completions = append(completions, i)
		})
	}
	if err := s.Run(); err != nil {
		panic(err)
	}
	return s.Checksum(), completions
}

func TestDeterministicChecksum(t *testing.T) {
	sum1, order1 := runProgram(42)
	sum2, order2 := runProgram(42)

	if sum1 != sum2 {
		t.Errorf("same seed produced different checksums: %x != %x", sum1, sum2)
	}
	for i := range order1 {
		if order1[i] != order2[i] {
			t.Errorf("same seed produced different completion order: %v != %v", order1, order2)
			break
		}
	}
}

func TestDifferentSeedsMayReorder(t *testing.T) {
	// not a strict requirement, but with ten tasks racing it would be
	// surprising for these seeds to agree
	sum1, _ := runProgram(1)
	sum2, _ := runProgram(2)
	if sum1 == sum2 {
		t.Logf("seeds 1 and 2 produced the same checksum %x", sum1)
	}
}

func TestStalledDetection(t *testing.T) {
	s := New(1)
	s.Go(func() {
		s.Pause()
	})

	err := s.Run()
	if !errors.Is(err, simulation.ErrStalled) {
		t.Errorf("expected ErrStalled, got %v", err)
	}
}

func TestNoSpuriousWakeups(t *testing.T) {
	s := New(1)

	wakeups := 0
	task := s.Go(func() {
		if err := s.Pause(); err != nil {
			t.Errorf("unexpected pause error: %v", err)
		}
		wakeups++
	})
	s.Go(func() {
		s.Sleep(time.Second)
		task.Wake()
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if wakeups != 1 {
		t.Errorf("expected exactly one wakeup, got %d", wakeups)
	}
}

func TestJoinPropagatesPanic(t *testing.T) {
	s := New(1)

	var joinErr error
	child := s.Go(func() {
		panic("boom")
	})
	s.Go(func() {
		if err := child.Join(); err != nil {
			joinErr = err
			return
		}
		joinErr = child.Err()
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(joinErr, simulation.ErrTaskPanicked) {
		t.Errorf("expected ErrTaskPanicked, got %v", joinErr)
	}
}

func TestStopDrainsSleepers(t *testing.T) {
	s := New(1)

	var sleepErr error
	s.Go(func() {
		sleepErr = s.Sleep(time.Hour)
	})
	s.Go(func() {
		s.Sleep(time.Second)
		s.Stop()
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(sleepErr, simulation.ErrCanceled) {
		t.Errorf("expected ErrCanceled from drained sleep, got %v", sleepErr)
	}
}

func TestCancelWakesSleeper(t *testing.T) {
	s := New(1)

	var sleepErr error
	victim := s.Go(func() {
		sleepErr = s.Sleep(time.Hour)
	})
	s.Go(func() {
		s.Sleep(time.Second)
		s.Cancel(victim)
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(sleepErr, simulation.ErrCanceled) {
		t.Errorf("expected ErrCanceled, got %v", sleepErr)
	}
}

func TestTimerReset(t *testing.T) {
	s := New(1)

	start := s.Now()
	var fired time.Duration
	s.Go(func() {
		cur := s.Current()
		timer := s.NewTimer(wakeTaskArg, cur, s.Now()+int64(time.Second))
		timer.Reset(s, s.Now()+int64(5*time.Second))
		if err := s.Pause(); err != nil {
			return
		}
		fired = time.Duration(s.Now() - start)
	})

	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	if fired != 5*time.Second {
		t.Errorf("expected reset timer to fire at +5s, got +%v", fired)
	}
}
