// Package deterministic implements the simulated runtime: a seeded
// cooperative scheduler, a virtual clock, and an in-memory network behind
// the simulation.Environment interface.
//
// A Runtime owns all state for one simulated execution. Nothing is shared
// between runtimes and nothing is global, so two runtimes created with the
// same seed and driven by the same program behave identically.
package deterministic

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"net/netip"

	"github.com/davidbarsky/simulation/internal/netsim"
	"github.com/davidbarsky/simulation/internal/sched"
	"github.com/davidbarsky/simulation/internal/simlog"
)

// Config configures a Runtime beyond its seed. The zero value discards log
// output and logs at info level.
type Config struct {
	Seed int64

	// LogOutput receives JSON log lines stamped with the virtual time and
	// the current task id. Nil discards.
	LogOutput io.Writer
	LogLevel  slog.Level
}

// Runtime is the deterministic runtime. Create one with New, NewWithSeed,
// or NewWithConfig, obtain Environment handles with Handle or
// LocalhostHandle, and drive it with BlockOn.
type Runtime struct {
	seed   int64
	sched  *sched.Scheduler
	reg    *netsim.Registry
	logger *slog.Logger
}

// New creates a runtime with a randomly drawn seed. Use NewWithSeed to
// reproduce a previous run.
func New() *Runtime {
	return NewWithSeed(rand.Int64())
}

// NewWithSeed creates a runtime whose scheduling and fault decisions are
// fully determined by seed.
func NewWithSeed(seed int64) *Runtime {
	return NewWithConfig(Config{Seed: seed})
}

// NewWithConfig creates a runtime from an explicit configuration.
func NewWithConfig(cfg Config) *Runtime {
	s := sched.New(cfg.Seed)

	out := cfg.LogOutput
	if out == nil {
		out = io.Discard
	}
	logger := simlog.New(out, cfg.LogLevel, simlog.Hooks{
		Clock:  s.NowTime,
		TaskID: s.CurrentID,
	}).With("seed", cfg.Seed)
	s.SetLogger(logger)

	return &Runtime{
		seed:   cfg.Seed,
		sched:  s,
		reg:    netsim.NewRegistry(s),
		logger: logger,
	}
}

// Seed returns the seed this runtime was created with. Record it alongside
// any failing run; replaying the seed replays the run.
func (r *Runtime) Seed() int64 {
	return r.seed
}

// Logger returns the runtime's logger. Records written from inside a task
// carry the virtual time and the task id.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Handle returns an Environment whose outbound connections originate from
// addr.
func (r *Runtime) Handle(addr netip.Addr) Env {
	return Env{rt: r, local: addr}
}

// LocalhostHandle returns an Environment scoped to 127.0.0.1.
func (r *Runtime) LocalhostHandle() Env {
	return r.Handle(netip.MustParseAddr("127.0.0.1"))
}

// BlockOn runs fn as the root task and drives the scheduler until it
// returns. Any tasks still pending at that point are canceled: their next
// suspension fails with simulation.ErrCanceled and they are expected to
// unwind.
//
// BlockOn returns an error wrapping simulation.ErrStalled if every task is
// blocked with no pending timer, or wrapping simulation.ErrTaskPanicked if
// fn panics. It may be called once per runtime.
func (r *Runtime) BlockOn(fn func()) error {
	root := r.sched.Go(func() {
		defer r.sched.Stop()
		fn()
	})
	if err := r.sched.Run(); err != nil {
		return err
	}
	return root.Err()
}

// Checksum returns the run's trace checksum: a hash folded over every
// scheduling pick, clock advancement, and fault decision. Two runs of the
// same program with the same seed produce the same checksum.
func (r *Runtime) Checksum() uint64 {
	return r.sched.Checksum()
}
