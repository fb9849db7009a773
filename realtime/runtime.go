// Package realtime implements simulation.Environment on top of the real
// world: goroutines, the wall clock, and operating system sockets.
//
// Programs written against simulation.Environment run unchanged under
// either runtime. Tests run under deterministic; the binary that ships runs
// under realtime.
package realtime

import (
	"fmt"
	"net/netip"

	"golang.org/x/sync/errgroup"

	"github.com/davidbarsky/simulation"
)

// Runtime is the real-world runtime. Each Spawn runs on its own goroutine.
type Runtime struct {
	group errgroup.Group
}

func New() *Runtime {
	return &Runtime{}
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

// BlockOn runs fn on the calling goroutine. Spawned tasks are not awaited;
// use Wait to join them. A panic in fn is returned as an error wrapping
// simulation.ErrTaskPanicked.
func (r *Runtime) BlockOn(fn func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", simulation.ErrTaskPanicked, recovered)
		}
	}()
	fn()
	return nil
}

// Wait blocks until every spawned task has returned. It reports the first
// task panic, wrapped around simulation.ErrTaskPanicked.
func (r *Runtime) Wait() error {
	return r.group.Wait()
}
