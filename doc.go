/*
Package simulation contains low level components for writing applications that
are amenable to FoundationDB-style simulation testing.

Application code is written once against the [Environment] capability
interface and then runs either on a real multi-threaded runtime with real
sockets ([github.com/davidbarsky/simulation/realtime]) or on a
single-threaded deterministic runtime with a virtual clock and an in-memory
network subject to seeded fault injection
([github.com/davidbarsky/simulation/deterministic]).

# Scheduling and time

The deterministic runtime provides a mock source of time. Simulated time only
advances when no task can make progress, and it advances instantly to the
earliest instant that unblocks a waiting task. Applications that rely on
delays and timeouts can therefore be tested in a tiny fraction of the
wall-clock time it would normally take to exercise a particular execution
ordering.

# Network

The deterministic runtime includes an in-memory network. Applications use
[Network.Bind] and [Network.Connect] to create in-memory connections between
components. Connections have extra latency and disconnect faults injected,
dependent on an initial seed value.

# Faults

Faults are injected based on a seeded random number generator, causing IO
delays and disconnects. This is sufficient to trigger bugs in higher-level
components, such as message reordering or missed retries.

By eliminating sources of nondeterminism and basing fault injection on a
seeded generator, it is possible to run many thousands of tests in the span
of a few seconds with different fault injections. If a particular seed causes
a failing execution ordering, the seed value is all that is needed to replay
and debug the run, and afterwards to pin the seed as a regression test. The
[github.com/davidbarsky/simulation/seedtest] package automates sweeping seeds
and checking determinism, and [github.com/davidbarsky/simulation/seedstore]
records failing seeds so they are not lost.

Launching the fault injector is explicit; spawn it at startup:

	rt := deterministic.NewWithSeed(1)
	env := rt.LocalhostHandle()
	rt.BlockOn(func() {
		env.Spawn(rt.LatencyFault().Run)
		// ... application tasks ...
	})
*/
package simulation
