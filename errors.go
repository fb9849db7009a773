package simulation

import "errors"

// Errors returned by runtime operations. Network errors additionally use
// syscall errnos (EADDRINUSE, ECONNREFUSED, ECONNRESET, EPIPE) so that code
// written against the real network behaves identically under simulation.
var (
	// ErrTimeout is returned by Environment.Timeout when the deadline
	// elapses before the inner operation completes.
	ErrTimeout = errors.New("simulation: timeout")

	// ErrCanceled is returned from a pending suspension when its task is
	// abandoned, either by a timeout or because the runtime is shutting
	// down.
	ErrCanceled = errors.New("simulation: canceled")

	// ErrStalled is returned by BlockOn when no task is runnable and no
	// timer is pending: the simulated program can make no progress.
	ErrStalled = errors.New("simulation: all tasks blocked")

	// ErrTaskPanicked wraps the recovered value of a panic inside a
	// spawned task.
	ErrTaskPanicked = errors.New("simulation: task panicked")
)
