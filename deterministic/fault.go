package deterministic

import (
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/davidbarsky/simulation/internal/netsim"
)

// A LatencyFault perturbs live connections with extra latency and induced
// disconnects. It is an ordinary task: the caller chooses where it runs by
// spawning Run explicitly.
//
//	h := rt.LocalhostHandle()
//	h.Spawn(rt.LatencyFault().Run)
//
// All randomness comes from a generator seeded from the runtime seed.
// Decisions are sampled once per tick against the connections live at that
// instant, in connection-registration order, so replaying a seed replays
// the exact fault sequence as long as the program issues its operations in
// the same order.
type LatencyFault struct {
	rt  *Runtime
	rng *rand.Rand

	// Tick is the virtual-time interval between fault decisions.
	Tick time.Duration

	// MinLatency and MaxLatency bound the extra one-way latency applied to
	// the picked stream direction each tick. The latency affects bytes
	// written after the draw.
	MinLatency time.Duration
	MaxLatency time.Duration

	// DisconnectProb is the per-tick probability of forcing the picked
	// connection into a disconnected state. Both sides then observe
	// ECONNRESET.
	DisconnectProb float64
}

// LatencyFault returns a fault injector with moderate defaults. The fields
// may be adjusted before spawning Run.
func (r *Runtime) LatencyFault() *LatencyFault {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], uint64(r.seed))
	return &LatencyFault{
		rt:             r,
		rng:            rand.New(rand.NewChaCha8(key)),
		Tick:           50 * time.Millisecond,
		MinLatency:     5 * time.Millisecond,
		MaxLatency:     250 * time.Millisecond,
		DisconnectProb: 0.05,
	}
}

// Run injects faults until the runtime drains. It must run inside a task.
func (f *LatencyFault) Run() {
	s := f.rt.sched
	logger := f.rt.logger

	for {
		if err := s.Sleep(f.Tick); err != nil {
			return
		}
		conns := f.rt.reg.Conns()
		if len(conns) == 0 {
			continue
		}

		conn := conns[f.rng.IntN(len(conns))]
		dir := f.rng.IntN(netsim.NumDirections)

		latency := f.MinLatency
		if delta := f.MaxLatency - f.MinLatency; delta > 0 {
			latency += time.Duration(f.rng.Int64N(int64(delta)))
		}
		conn.SetLatency(dir, latency)
		s.RecordFault(uint64(conn.ID()), uint64(latency))
		logger.Debug("injecting latency",
			"conn", conn.ID(), "dir", dir, "latency", latency)

		if f.rng.Float64() < f.DisconnectProb {
			conn.Disconnect()
			s.RecordFault(uint64(conn.ID()), ^uint64(0))
			logger.Debug("injecting disconnect", "conn", conn.ID())
		}
	}
}
