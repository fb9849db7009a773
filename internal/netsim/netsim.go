// Package netsim implements the in-memory network used by the deterministic
// runtime: a registry mapping bound addresses to pending-connection queues,
// and paired byte streams whose delivery is subject to fault injection.
//
// All state is mutated from scheduler-controlled tasks, so no locking is
// needed: at most one task executes at a time.
package netsim

import (
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"github.com/davidbarsky/simulation/internal/sched"
)

// A waiterq is a FIFO of tasks parked on some condition. Waiters re-check
// their condition after waking, so waking conservatively is fine.
type waiterq []*sched.Task

func (q *waiterq) push(t *sched.Task) {
	*q = append(*q, t)
}

func (q *waiterq) remove(t *sched.Task) {
	for i, other := range *q {
		if other == t {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return
		}
	}
}

func (q *waiterq) wakeAll() {
	for _, t := range *q {
		t.Wake()
	}
}

// Registry maps bound addresses to listeners and tracks live connections for
// the fault injector. One Registry is shared by all environment handles
// cloned from the same runtime.
type Registry struct {
	sched *sched.Scheduler

	listeners map[netip.AddrPort]*Listener

	// live connections in registration order; the injector's pick of a
	// connection to perturb must not depend on map iteration order
	conns      []*Conn
	nextConnID int

	nextPort uint16
}

// Ephemeral ports for outbound endpoints come from the IANA dynamic range,
// like a real stack.
const ephemeralPortMin = 49152

func NewRegistry(s *sched.Scheduler) *Registry {
	return &Registry{
		sched:     s,
		listeners: make(map[netip.AddrPort]*Listener),
		nextPort:  ephemeralPortMin,
	}
}

func (r *Registry) allocatePort(local netip.Addr) uint16 {
	for {
		port := r.nextPort
		r.nextPort++
		if r.nextPort == 0 {
			r.nextPort = ephemeralPortMin
		}
		// never hand out an address a listener is bound to
		if _, ok := r.listeners[netip.AddrPortFrom(local, port)]; !ok {
			return port
		}
	}
}

// Conns returns the live connections in registration order.
func (r *Registry) Conns() []*Conn {
	return r.conns
}

func (r *Registry) removeConn(c *Conn) {
	for i, other := range r.conns {
		if other == c {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return
		}
	}
}

// Bind registers a listener for addr. At most one listener may be bound to
// an address at a time.
func (r *Registry) Bind(addr netip.AddrPort) (*Listener, error) {
	if _, ok := r.listeners[addr]; ok {
		return nil, fmt.Errorf("bind %s: %w", addr, syscall.EADDRINUSE)
	}

	l := &Listener{
		reg:  r,
		addr: addr,
		ttl:  64,
	}
	r.listeners[addr] = l
	return l, nil
}

// Connect establishes a connection to the listener bound to addr. The
// listener-side endpoint is queued for Accept; the returned endpoint is the
// connector's.
func (r *Registry) Connect(local netip.Addr, addr netip.AddrPort) (*Stream, error) {
	l, ok := r.listeners[addr]
	if !ok || l.closed {
		return nil, fmt.Errorf("connect %s: %w", addr, syscall.ECONNREFUSED)
	}

	localAddr := netip.AddrPortFrom(local, r.allocatePort(local))
	conn := newConn(r, localAddr, addr)
	r.conns = append(r.conns, conn)

	l.pending = append(l.pending, conn.accept)
	l.acceptq.wakeAll()

	return conn.dial, nil
}

// Listener owns a FIFO queue of pending inbound connections.
type Listener struct {
	reg  *Registry
	addr netip.AddrPort

	pending []*Stream
	acceptq waiterq

	ttl    uint32
	closed bool
}

// Addr returns the bound address.
func (l *Listener) Addr() netip.AddrPort {
	return l.addr
}

// TTL echoes the configured time-to-live; it has no simulation semantics.
func (l *Listener) TTL() uint32 {
	return l.ttl
}

func (l *Listener) SetTTL(ttl uint32) {
	l.ttl = ttl
}

// Accept suspends until a pending connection exists, then returns the
// earliest one.
func (l *Listener) Accept() (*Stream, error) {
	cur := l.reg.sched.Current()
	for {
		if l.closed {
			return nil, fmt.Errorf("accept %s: %w", l.addr, net.ErrClosed)
		}
		if len(l.pending) > 0 {
			ep := l.pending[0]
			l.pending = l.pending[1:]
			return ep, nil
		}

		l.acceptq.push(cur)
		err := l.reg.sched.Pause()
		l.acceptq.remove(cur)
		if err != nil {
			return nil, fmt.Errorf("accept %s: %w", l.addr, err)
		}
	}
}

// Close unbinds the listener. Connections still pending in the accept queue
// are closed; connect attempts from now on are refused.
func (l *Listener) Close() error {
	if l.closed {
		return net.ErrClosed
	}
	l.closed = true
	delete(l.reg.listeners, l.addr)

	for _, ep := range l.pending {
		ep.conn.closeShared()
	}
	l.pending = nil

	l.acceptq.wakeAll()
	return nil
}
