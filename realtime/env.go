package realtime

import (
	"fmt"
	"iter"
	"net"
	"net/netip"
	"time"

	"github.com/davidbarsky/simulation"
)

// Env is the real-world simulation.Environment. It is a cheap value handle.
type Env struct {
	rt    *Runtime
	local netip.Addr
}

var _ simulation.Environment = Env{}

func catchPanic(fn func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", simulation.ErrTaskPanicked, recovered)
		}
	}()
	fn()
	return nil
}

// Spawn starts fn on a new goroutine tracked by the runtime.
func (e Env) Spawn(fn func()) {
	e.rt.group.Go(func() error {
		return catchPanic(fn)
	})
}

// SpawnResult starts fn on a new goroutine and returns a handle to its
// output.
func (e Env) SpawnResult(fn func() (any, error)) simulation.JoinHandle {
	h := &resultHandle{done: make(chan struct{})}
	e.rt.group.Go(func() error {
		defer close(h.done)
		panicked := catchPanic(func() {
			h.value, h.err = fn()
		})
		if panicked != nil {
			h.err = panicked
		}
		return panicked
	})
	return h
}

type resultHandle struct {
	done  chan struct{}
	value any
	err   error
}

func (h *resultHandle) Wait() (any, error) {
	<-h.done
	if h.err != nil {
		return nil, h.err
	}
	return h.value, nil
}

// Now returns the wall-clock time.
func (e Env) Now() time.Time {
	return time.Now()
}

// Delay sleeps until deadline.
func (e Env) Delay(deadline time.Time) {
	time.Sleep(time.Until(deadline))
}

// DelayFrom sleeps for d.
func (e Env) DelayFrom(d time.Duration) {
	time.Sleep(d)
}

// Timeout runs op on its own goroutine and waits until it completes or
// until d elapses. On timeout the goroutine keeps running but its result is
// discarded.
func (e Env) Timeout(d time.Duration, op func() error) error {
	done := make(chan error, 1)
	go func() {
		var err error
		if panicked := catchPanic(func() { err = op() }); panicked != nil {
			err = panicked
		}
		done <- err
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return simulation.ErrTimeout
	}
}

// Bind listens for TCP connections on addr.
func (e Env) Bind(addr netip.AddrPort) (simulation.Listener, error) {
	ln, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(addr))
	if err != nil {
		return nil, err
	}
	return &listener{ln: ln, ttl: 64}, nil
}

// Connect dials the TCP listener at addr, originating from the handle's
// address.
func (e Env) Connect(addr netip.AddrPort) (simulation.Stream, error) {
	d := net.Dialer{}
	if e.local.IsValid() {
		d.LocalAddr = net.TCPAddrFromAddrPort(netip.AddrPortFrom(e.local, 0))
	}
	c, err := d.Dial("tcp", addr.String())
	if err != nil {
		return nil, err
	}
	return stream{c.(*net.TCPConn)}, nil
}

type listener struct {
	ln  *net.TCPListener
	ttl uint32
}

func (l *listener) Accept() (simulation.Stream, netip.AddrPort, error) {
	c, err := l.ln.AcceptTCP()
	if err != nil {
		return nil, netip.AddrPort{}, err
	}
	s := stream{c}
	return s, s.PeerAddr(), nil
}

func (l *listener) Close() error {
	return l.ln.Close()
}

func (l *listener) Addr() netip.AddrPort {
	return l.ln.Addr().(*net.TCPAddr).AddrPort()
}

func (l *listener) TTL() uint32 {
	return l.ttl
}

func (l *listener) SetTTL(ttl uint32) {
	l.ttl = ttl
}

func (l *listener) Incoming() iter.Seq2[simulation.Stream, error] {
	return func(yield func(simulation.Stream, error) bool) {
		for {
			st, _, err := l.Accept()
			if !yield(st, err) || err != nil {
				return
			}
		}
	}
}

type stream struct {
	*net.TCPConn
}

func (s stream) LocalAddr() netip.AddrPort {
	return s.TCPConn.LocalAddr().(*net.TCPAddr).AddrPort()
}

func (s stream) PeerAddr() netip.AddrPort {
	return s.TCPConn.RemoteAddr().(*net.TCPAddr).AddrPort()
}
