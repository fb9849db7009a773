package simulation

import (
	"io"
	"iter"
	"net/netip"
	"time"
)

// Network is the capability interface for creating connections. Both the
// deterministic in-memory network and the real OS network satisfy it.
type Network interface {
	// Bind returns a listener that accepts connections on addr. It fails
	// with an error satisfying errors.Is(err, syscall.EADDRINUSE) if a
	// listener is already bound to addr.
	Bind(addr netip.AddrPort) (Listener, error)

	// Connect connects to the listener bound to addr, returning a stream
	// that can be used to send and receive bytes. It fails with an error
	// satisfying errors.Is(err, syscall.ECONNREFUSED) if no listener is
	// bound to addr.
	Connect(addr netip.AddrPort) (Stream, error)
}

// Environment is the capability interface that application code programs
// against. Every operation that can suspend does so through the Environment,
// which is what lets the deterministic runtime control interleaving and
// virtual time.
//
// Environment values are cheap to copy and all copies derived from the same
// runtime observe the same clock, scheduler, and network.
type Environment interface {
	// Spawn starts fn as a new task, fire-and-forget.
	Spawn(fn func())

	// SpawnResult starts fn as a new task and returns a handle whose Wait
	// resolves with the task's output once it completes. Prefer the typed
	// [SpawnWithResult] helper.
	SpawnResult(fn func() (any, error)) JoinHandle

	// Now returns the current time according to the runtime.
	Now() time.Time

	// Delay suspends the calling task until deadline.
	Delay(deadline time.Time)

	// DelayFrom suspends the calling task for d from now.
	DelayFrom(d time.Duration)

	// Timeout runs op until it completes or until d elapses, whichever
	// comes first. If the deadline fires first the op is abandoned, its
	// pending suspension fails with [ErrCanceled], and Timeout returns
	// [ErrTimeout]. Ties resolve to timeout.
	Timeout(d time.Duration, op func() error) error

	Network
}

// Listener is the capability interface for accepting connections.
type Listener interface {
	// Accept suspends until a pending connection exists, then returns one
	// established stream and the peer's address. Connections are accepted
	// in connect order.
	Accept() (Stream, netip.AddrPort, error)

	// Close closes the listener. Pending and future connect attempts to
	// its address fail with ECONNREFUSED.
	Close() error

	// Addr returns the bound address.
	Addr() netip.AddrPort

	// TTL and SetTTL echo the configured time-to-live. The default is 64.
	TTL() uint32
	SetTTL(ttl uint32)

	// Incoming returns the listener's connections as a lazy, infinite
	// sequence. The sequence ends only when the listener is closed, at
	// which point the final element carries the error.
	Incoming() iter.Seq2[Stream, error]
}

// Stream is one endpoint of an established bidirectional byte connection.
//
// Read suspends until bytes are available or the peer is gone; it returns
// io.EOF after a graceful close by the peer and an error satisfying
// errors.Is(err, syscall.ECONNRESET) after a fault-injected disconnect.
// Write after either side has closed fails with an error satisfying
// errors.Is(err, syscall.EPIPE).
type Stream interface {
	io.ReadWriteCloser

	LocalAddr() netip.AddrPort
	PeerAddr() netip.AddrPort
}

// JoinHandle resolves with a spawned task's output. The handle is a weak,
// non-owning reference: dropping it does not cancel the task.
type JoinHandle interface {
	// Wait suspends until the task completes and returns its output. A
	// panic inside the task surfaces here as an error wrapping
	// [ErrTaskPanicked].
	Wait() (any, error)
}
