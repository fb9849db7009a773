package netsim

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"slices"
	"syscall"
	"time"

	"github.com/davidbarsky/simulation/internal/sched"
)

// Directions of a connection, used by the fault injector to pick which side
// of a stream to perturb.
const (
	DirDialToAccept = iota
	DirAcceptToDial
	NumDirections
)

// A Conn is the shared state of one established connection: two directional
// pipes plus fault state. Its two Stream endpoints are jointly owned by the
// two connected parties.
type Conn struct {
	reg *Registry
	id  int

	reset   bool // fault-injected disconnect
	removed bool

	pipes [NumDirections]*pipe

	dial, accept *Stream
}

func newConn(r *Registry, dialAddr, acceptAddr netip.AddrPort) *Conn {
	c := &Conn{
		reg: r,
		id:  r.nextConnID,
	}
	r.nextConnID++

	c.pipes[DirDialToAccept] = &pipe{sched: r.sched}
	c.pipes[DirAcceptToDial] = &pipe{sched: r.sched}

	c.dial = &Stream{
		conn:   c,
		local:  dialAddr,
		remote: acceptAddr,
		send:   c.pipes[DirDialToAccept],
		recv:   c.pipes[DirAcceptToDial],
	}
	c.accept = &Stream{
		conn:   c,
		local:  acceptAddr,
		remote: dialAddr,
		send:   c.pipes[DirAcceptToDial],
		recv:   c.pipes[DirDialToAccept],
	}
	return c
}

// ID identifies the connection within its runtime, in registration order.
func (c *Conn) ID() int {
	return c.id
}

// SetLatency injects extra delivery latency for one direction. Bytes written
// after the call become readable only once the latency has elapsed.
func (c *Conn) SetLatency(dir int, d time.Duration) {
	c.pipes[dir].latency = d
}

// Disconnect flips the connection into a disconnected state: operations on
// either endpoint fail with ECONNRESET from now on.
func (c *Conn) Disconnect() {
	if c.removed {
		return
	}
	c.reset = true
	c.remove()
	for _, p := range c.pipes {
		p.readq.wakeAll()
	}
}

// closeShared closes the whole connection; the surviving endpoint observes
// end-of-stream on read and EPIPE on write.
func (c *Conn) closeShared() {
	if c.removed {
		return
	}
	c.remove()
	for _, p := range c.pipes {
		p.closed = true
		p.readq.wakeAll()
	}
}

func (c *Conn) remove() {
	c.removed = true
	c.reg.removeConn(c)
}

type segment struct {
	data    []byte
	readyAt int64
}

// A pipe carries bytes in one direction. Segments become readable once the
// virtual clock reaches their arrival instant, which is where injected
// latency takes effect.
type pipe struct {
	sched *sched.Scheduler

	segs   []segment
	closed bool

	latency time.Duration

	readq waiterq
}

// Stream is one endpoint of a connection.
type Stream struct {
	conn *Conn

	local, remote netip.AddrPort

	send, recv *pipe

	closed bool
}

func (s *Stream) LocalAddr() netip.AddrPort {
	return s.local
}

func (s *Stream) PeerAddr() netip.AddrPort {
	return s.remote
}

// Write appends b to the peer's read buffer. The bytes arrive after the
// direction's injected latency, preserving write order.
func (s *Stream) Write(b []byte) (int, error) {
	if s.conn.reset {
		return 0, fmt.Errorf("write %s: %w", s.remote, syscall.ECONNRESET)
	}
	if s.closed || s.send.closed {
		return 0, fmt.Errorf("write %s: %w", s.remote, syscall.EPIPE)
	}
	if len(b) == 0 {
		return 0, nil
	}

	now := s.conn.reg.sched.Now()
	seg := segment{
		data:    slices.Clone(b),
		readyAt: now + int64(s.send.latency),
	}
	// Delivery stays FIFO even when latency drops mid-connection: a segment
	// never becomes readable before one written earlier.
	if n := len(s.send.segs); n > 0 && s.send.segs[n-1].readyAt > seg.readyAt {
		seg.readyAt = s.send.segs[n-1].readyAt
	}
	s.send.segs = append(s.send.segs, seg)

	// Wake even when the segment is still in flight: a reader parked on the
	// previously empty pipe re-checks and registers a timer for the arrival.
	s.send.readq.wakeAll()
	return len(b), nil
}

// Read suspends until bytes are available or the connection is gone. It
// returns io.EOF after a graceful close once all delivered bytes have been
// consumed, and ECONNRESET after a fault-injected disconnect.
func (s *Stream) Read(b []byte) (int, error) {
	cur := s.conn.reg.sched.Current()
	for {
		if s.conn.reset {
			return 0, fmt.Errorf("read %s: %w", s.remote, syscall.ECONNRESET)
		}
		if s.closed {
			return 0, fmt.Errorf("read %s: %w", s.remote, net.ErrClosed)
		}

		now := s.conn.reg.sched.Now()
		if n := s.copyReady(b, now); n > 0 {
			return n, nil
		}
		if len(s.recv.segs) == 0 && s.recv.closed {
			return 0, io.EOF
		}

		var timer *sched.Timer
		if len(s.recv.segs) > 0 {
			// Data is in flight; wake when the earliest segment arrives.
			timer = s.conn.reg.sched.NewTimer(wakeTask, cur, s.recv.segs[0].readyAt)
		}
		s.recv.readq.push(cur)
		err := s.conn.reg.sched.Pause()
		s.recv.readq.remove(cur)
		if timer != nil {
			timer.Stop(s.conn.reg.sched)
		}
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", s.remote, err)
		}
	}
}

func wakeTask(t *sched.Timer) {
	t.Arg.(*sched.Task).Wake()
}

// copyReady moves as many arrived bytes as fit into b.
func (s *Stream) copyReady(b []byte, now int64) int {
	total := 0
	for len(b) > 0 && len(s.recv.segs) > 0 {
		seg := &s.recv.segs[0]
		if seg.readyAt > now {
			break
		}
		n := copy(b, seg.data)
		b = b[n:]
		total += n
		if n == len(seg.data) {
			s.recv.segs = s.recv.segs[1:]
		} else {
			seg.data = seg.data[n:]
		}
	}
	return total
}

// Close closes the shared connection. The peer's subsequent reads observe
// end-of-stream and its writes fail; a second Close reports net.ErrClosed.
func (s *Stream) Close() error {
	if s.closed {
		return net.ErrClosed
	}
	s.closed = true
	s.conn.closeShared()
	return nil
}
