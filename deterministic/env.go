package deterministic

import (
	"iter"
	"net/netip"
	"runtime"
	"time"

	"github.com/davidbarsky/simulation"
	"github.com/davidbarsky/simulation/internal/netsim"
	"github.com/davidbarsky/simulation/internal/sched"
)

// Env is the deterministic simulation.Environment. It is a cheap value
// handle; all copies observe the runtime's clock, scheduler, and network.
type Env struct {
	rt    *Runtime
	local netip.Addr
}

var _ simulation.Environment = Env{}

// Spawn starts fn as a new task.
func (e Env) Spawn(fn func()) {
	e.rt.sched.Go(fn)
}

// SpawnResult starts fn as a new task and returns a handle to its output.
func (e Env) SpawnResult(fn func() (any, error)) simulation.JoinHandle {
	h := &resultHandle{}
	h.task = e.rt.sched.Go(func() {
		h.value, h.err = fn()
	})
	return h
}

type resultHandle struct {
	task  *sched.Task
	value any
	err   error
}

func (h *resultHandle) Wait() (any, error) {
	if err := h.task.Join(); err != nil {
		return nil, err
	}
	if err := h.task.Err(); err != nil {
		return nil, err
	}
	return h.value, h.err
}

// Now returns the current virtual time.
func (e Env) Now() time.Time {
	return e.rt.sched.NowTime()
}

// Delay suspends the calling task until the virtual clock reaches deadline.
func (e Env) Delay(deadline time.Time) {
	if err := e.rt.sched.SleepUntil(deadline.UnixNano()); err != nil {
		// canceled during drain; end the task
		runtime.Goexit()
	}
}

// DelayFrom suspends the calling task for d of virtual time.
func (e Env) DelayFrom(d time.Duration) {
	if err := e.rt.sched.Sleep(d); err != nil {
		runtime.Goexit()
	}
}

func wakeArg(t *sched.Timer) {
	t.Arg.(*sched.Task).Wake()
}

// Timeout runs op as a child task and waits until it completes or until d
// of virtual time elapses. If the deadline fires first, or the two coincide,
// op is canceled and Timeout returns simulation.ErrTimeout.
func (e Env) Timeout(d time.Duration, op func() error) error {
	s := e.rt.sched
	cur := s.Current()
	if cur == nil {
		panic("simulation: Timeout outside a task")
	}
	deadline := s.Now() + int64(d)

	var opErr error
	child := s.Go(func() { opErr = op() })
	timer := s.NewTimer(wakeArg, cur, deadline)

	for {
		child.AddWaiter(cur)
		err := s.Pause()
		child.RemoveWaiter(cur)
		if err != nil {
			timer.Stop(s)
			s.Cancel(child)
			return err
		}
		if s.Now() >= deadline {
			timer.Stop(s)
			s.Cancel(child)
			return simulation.ErrTimeout
		}
		if child.Finished() {
			timer.Stop(s)
			if err := child.Err(); err != nil {
				return err
			}
			return opErr
		}
	}
}

// Bind returns a listener accepting simulated connections on addr.
func (e Env) Bind(addr netip.AddrPort) (simulation.Listener, error) {
	l, err := e.rt.reg.Bind(addr)
	if err != nil {
		return nil, err
	}
	return listener{l}, nil
}

// Connect connects to the listener bound to addr. The local endpoint gets
// an address derived from the handle's address and a fresh port.
func (e Env) Connect(addr netip.AddrPort) (simulation.Stream, error) {
	st, err := e.rt.reg.Connect(e.local, addr)
	if err != nil {
		return nil, err
	}
	return st, nil
}

type listener struct {
	l *netsim.Listener
}

func (l listener) Accept() (simulation.Stream, netip.AddrPort, error) {
	st, err := l.l.Accept()
	if err != nil {
		return nil, netip.AddrPort{}, err
	}
	return st, st.PeerAddr(), nil
}

func (l listener) Close() error {
	return l.l.Close()
}

func (l listener) Addr() netip.AddrPort {
	return l.l.Addr()
}

func (l listener) TTL() uint32 {
	return l.l.TTL()
}

func (l listener) SetTTL(ttl uint32) {
	l.l.SetTTL(ttl)
}

// Incoming yields accepted streams until the listener is closed. The final
// element carries the close error.
func (l listener) Incoming() iter.Seq2[simulation.Stream, error] {
	return func(yield func(simulation.Stream, error) bool) {
		for {
			st, _, err := l.Accept()
			if !yield(st, err) || err != nil {
				return
			}
		}
	}
}
