// Package sched implements the single-threaded cooperative scheduler and the
// virtual clock that the deterministic runtime is built on.
//
// Every task runs on its own goroutine, but the scheduler gates execution so
// that exactly one task goroutine runs at a time: the scheduler resumes a
// task, then blocks until that task parks or finishes. Tasks only yield
// control at explicit suspension points (Pause, Sleep, Join), so
// "concurrency" is interleaving, and the interleaving is a deterministic
// function of the seed and the order in which tasks issue operations.
package sched

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	mathrand "math/rand"

	"github.com/davidbarsky/simulation"
)

type Scheduler struct {
	seed   int64
	rand   fastrander
	clock  *clock
	logger *slog.Logger

	checksummer *checksummer

	tasks      intrusiveList[*Task]
	runnable   intrusiveList[*Task]
	nextTaskID int

	current *Task

	// signaled by the running task when it parks or finishes
	yielded chan struct{}

	running  bool
	stopping bool
	draining bool
}

// New creates a scheduler whose entire behavior is determined by seed.
func New(seed int64) *Scheduler {
	rand := mathrand.New(mathrand.NewSource(seed))

	return &Scheduler{
		seed:        seed,
		rand:        fastrander{state: rand.Uint64()},
		clock:       newClock(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		checksummer: newChecksummer(),
		tasks:       make([]*Task, 0, 64),
		runnable:    make([]*Task, 0, 64),
		nextTaskID:  1,
		yielded:     make(chan struct{}),
	}
}

// SetLogger replaces the scheduler's logger. Must be called before Run.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Seed returns the seed the scheduler was created with.
func (s *Scheduler) Seed() int64 {
	return s.seed
}

// Now returns the current virtual time in unix nanoseconds.
func (s *Scheduler) Now() int64 {
	return s.clock.now
}

// NowTime returns the current virtual time.
func (s *Scheduler) NowTime() time.Time {
	return time.Unix(0, s.clock.now)
}

// Checksum returns the running trace checksum. Identical programs run with
// identical seeds produce identical checksums.
func (s *Scheduler) Checksum() uint64 {
	return s.checksummer.sum()
}

// RecordFault folds a fault-injection decision into the trace checksum.
func (s *Scheduler) RecordFault(a, b uint64) {
	s.checksummer.recordIntInt(s.logger, checksumKeyFault, a, b)
}

// Current returns the task currently executing, or nil when called from
// outside the scheduler (timer handlers, setup code).
func (s *Scheduler) Current() *Task {
	return s.current
}

// CurrentID returns the id of the currently executing task, or 0.
func (s *Scheduler) CurrentID() int {
	if s.current == nil {
		return 0
	}
	return s.current.ID
}

type intrusiveList[A any] []A

type intrusiveIndex struct{ idx int }

func (l *intrusiveList[A]) add(elem A, idxFunc func(elem A) *intrusiveIndex) {
	if idxFunc(elem).idx != -1 {
		panic(elem)
	}
	idxFunc(elem).idx = len(*l)
	*l = append(*l, elem)
}

func (l *intrusiveList[A]) remove(elem A, idxFunc func(elem A) *intrusiveIndex) {
	oldIdx := idxFunc(elem).idx
	if oldIdx == -1 {
		panic(elem)
	}
	n := len(*l)
	replacement := (*l)[n-1]
	(*l)[oldIdx] = replacement
	idxFunc(replacement).idx = oldIdx
	*l = (*l)[:n-1]
	idxFunc(elem).idx = -1
}

// A Task is one cooperative unit of execution plus its bookkeeping.
type Task struct {
	ID int

	allIdx      intrusiveIndex // idx in scheduler.tasks, or -1
	runnableIdx intrusiveIndex // idx in scheduler.runnable, or -1

	sched *Scheduler
	fn    func()

	// resumed by the scheduler to run one step
	resume chan struct{}

	parkWait bool
	waiting  bool
	finished bool
	canceled bool

	panicValue any
	panicStack []byte
	err        error

	// tasks to wake when this task finishes
	waiters []*Task
}

func (t *Task) allIdxPtr() *intrusiveIndex      { return &t.allIdx }
func (t *Task) runnableIdxPtr() *intrusiveIndex { return &t.runnableIdx }

// Go enqueues fn as a new runnable task. It may be called before Run or from
// inside another task.
func (s *Scheduler) Go(fn func()) *Task {
	id := s.nextTaskID
	s.nextTaskID++

	t := &Task{
		ID:     id,
		sched:  s,
		fn:     fn,
		resume: make(chan struct{}),
	}
	t.allIdx.idx = -1
	t.runnableIdx.idx = -1

	s.checksummer.recordIntInt(s.logger, checksumKeyTaskCreate, uint64(t.ID), uint64(s.CurrentID()))
	if s.logger.Enabled(context.TODO(), slog.LevelDebug) {
		s.logger.LogAttrs(context.TODO(), slog.LevelDebug, "spawning task",
			slog.Int("childtask", t.ID))
	}

	s.tasks.add(t, (*Task).allIdxPtr)
	s.runnable.add(t, (*Task).runnableIdxPtr)

	go func() {
		<-t.resume
		defer t.exitpoint()
		t.fn()
	}()

	return t
}

// exitpoint stores any panic value and hands control back to the scheduler
// one last time.
func (t *Task) exitpoint() {
	if recovered := recover(); recovered != nil {
		t.panicValue = recovered
		stack := make([]byte, 32*1024)
		t.panicStack = stack[:runtime.Stack(stack, false)]
		t.err = fmt.Errorf("%w: %v", simulation.ErrTaskPanicked, recovered)
	}
	t.finished = true
	t.sched.yielded <- struct{}{}
}

// park hands control back to the scheduler. With wait set the task is moved
// off the runnable list until woken; without it the task stays runnable and
// merely yields its turn.
func (t *Task) park(wait bool) {
	t.parkWait = wait
	t.sched.yielded <- struct{}{}
	<-t.resume
}

func (t *Task) setWaiting(waiting bool) {
	s := t.sched
	t.waiting = waiting
	if t.runnableIdx.idx == -1 && !t.waiting {
		s.runnable.add(t, (*Task).runnableIdxPtr)
	} else if t.runnableIdx.idx != -1 && t.waiting {
		s.runnable.remove(t, (*Task).runnableIdxPtr)
	}
}

// Wake moves a waiting task back to the runnable list. Waking a finished or
// already-runnable task is a no-op, so event sources may wake conservatively.
func (t *Task) Wake() {
	if t.finished || !t.waiting {
		return
	}
	t.setWaiting(false)
}

// Finished reports whether the task has completed.
func (t *Task) Finished() bool {
	return t.finished
}

// Err returns the task's terminal error, if any. A panic inside the task
// surfaces here wrapping simulation.ErrTaskPanicked.
func (t *Task) Err() error {
	return t.err
}

// AddWaiter registers w to be woken when t finishes.
func (t *Task) AddWaiter(w *Task) {
	t.waiters = append(t.waiters, w)
}

// RemoveWaiter deregisters w. Required when w abandons the wait (for example
// on timeout) so no stale wakeup fires later.
func (t *Task) RemoveWaiter(w *Task) {
	for i, other := range t.waiters {
		if other == w {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}

// Pause parks the current task until some event source wakes it. It returns
// simulation.ErrCanceled if the task has been abandoned; callers must treat
// that as terminal and unwind.
func (s *Scheduler) Pause() error {
	t := s.current
	if t == nil {
		panic("sched: Pause outside a task")
	}
	if t.canceled {
		return simulation.ErrCanceled
	}
	t.park(true)
	if t.canceled {
		return simulation.ErrCanceled
	}
	return nil
}

// Yield gives up the current task's turn while staying runnable.
func (s *Scheduler) Yield() {
	t := s.current
	if t == nil {
		panic("sched: Yield outside a task")
	}
	t.park(false)
}

// Cancel abandons t: its pending and future suspensions fail with
// simulation.ErrCanceled. Cancel does not forcibly stop a task that never
// suspends again; its eventual result is discarded.
func (s *Scheduler) Cancel(t *Task) {
	if t.finished || t.canceled {
		return
	}
	t.canceled = true
	if t.waiting {
		t.setWaiting(false)
	}
}

func wakeTaskArg(t *Timer) {
	t.Arg.(*Task).Wake()
}

// Sleep suspends the current task for d of virtual time.
func (s *Scheduler) Sleep(d time.Duration) error {
	return s.SleepUntil(s.clock.now + int64(d))
}

// SleepUntil suspends the current task until the virtual clock reaches when.
func (s *Scheduler) SleepUntil(when int64) error {
	t := s.current
	if t == nil {
		panic("sched: SleepUntil outside a task")
	}
	if t.canceled {
		return simulation.ErrCanceled
	}
	if when <= s.clock.now {
		return nil
	}

	timer := s.NewTimer(wakeTaskArg, t, when)
	if err := s.Pause(); err != nil {
		timer.Stop(s)
		return err
	}
	return nil
}

// Join suspends the current task until t finishes. The caller keeps only this
// weak reference; the scheduler owns the task itself.
func (t *Task) Join() error {
	s := t.sched
	cur := s.current
	if cur == nil {
		panic("sched: Join outside a task")
	}
	for !t.finished {
		t.AddWaiter(cur)
		err := s.Pause()
		t.RemoveWaiter(cur)
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop asks the scheduler to wind down: all remaining tasks are canceled and
// woken so they can observe ErrCanceled and return.
func (s *Scheduler) Stop() {
	s.stopping = true
}

func (s *Scheduler) step(t *Task) {
	s.current = t
	t.resume <- struct{}{}
	<-s.yielded
	s.current = nil

	if !t.finished && t.parkWait {
		t.parkWait = false
		t.setWaiting(true)
	}
}

// Run drives tasks to completion. It returns when every task has finished,
// when Stop has been called and the remaining tasks have drained, or with an
// error wrapping simulation.ErrStalled when no task is runnable and no timer
// is pending.
func (s *Scheduler) Run() error {
	if s.running {
		panic("sched: scheduler already running or ran")
	}
	s.running = true

	s.checksummer.recordIntInt(s.logger, checksumKeyRunStarted, uint64(s.seed), 0)

	for len(s.tasks) > 0 {
		if s.stopping && !s.draining {
			s.draining = true
			for _, t := range s.tasks {
				t.canceled = true
				if t.waiting {
					t.setWaiting(false)
				}
			}
		}

		if !s.draining {
			for {
				timer, ok := s.clock.maybefire()
				if !ok {
					break
				}
				timer.handler(timer)
			}
		}

		if len(s.runnable) == 0 {
			if s.draining {
				// Remaining tasks ignored cancellation; abandon them.
				break
			}
			if s.clock.anyWaiting() {
				s.clock.advance()
				s.checksummer.recordIntInt(s.logger, checksumKeyTimeNow, uint64(s.clock.now), 0)
				continue
			}
			buf := make([]byte, 256*1024)
			buf = buf[:runtime.Stack(buf, true)]
			return fmt.Errorf("%w\n\n%s", simulation.ErrStalled, string(buf))
		}

		pick := s.runnable[s.rand.fastrandn(uint32(len(s.runnable)))]
		s.checksummer.recordIntInt(s.logger, checksumKeyRunPick, uint64(pick.ID), s.rand.state)

		s.step(pick)

		var flags uint64
		if pick.finished {
			flags |= 1
		}
		if pick.waiting {
			flags |= 1 << 1
		}
		s.checksummer.recordIntInt(s.logger, checksumKeyRunResult, flags, s.rand.state)

		if pick.finished {
			if pick.panicValue != nil {
				s.logger.Error("uncaught panic",
					"task", pick.ID,
					"panic", fmt.Sprint(pick.panicValue),
					"traceback", strings.Split(strings.ReplaceAll(string(pick.panicStack), "\t", "  "), "\n"))
			}
			for _, w := range pick.waiters {
				w.Wake()
			}
			pick.waiters = nil
			if pick.runnableIdx.idx != -1 {
				s.runnable.remove(pick, (*Task).runnableIdxPtr)
			}
			s.tasks.remove(pick, (*Task).allIdxPtr)
		}
	}

	s.checksummer.recordIntInt(s.logger, checksumKeyRunFinished, 0, 0)
	return nil
}
