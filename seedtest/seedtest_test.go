package seedtest_test

import (
	"io"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/davidbarsky/simulation"
	"github.com/davidbarsky/simulation/deterministic"
	"github.com/davidbarsky/simulation/seedtest"
)

// pingPong echoes one message over the simulated network while the fault
// injector perturbs the connection. It panics if the echo comes back wrong.
func pingPong(rt *deterministic.Runtime, env simulation.Environment) {
	addr := netip.MustParseAddrPort("127.0.0.1:9999")

	env.Spawn(rt.LatencyFault().Run)

	l, err := env.Bind(addr)
	if err != nil {
		panic(err)
	}
	env.Spawn(func() {
		for conn, err := range l.Incoming() {
			if err != nil {
				return
			}
			env.Spawn(func() {
				io.Copy(conn, conn)
			})
		}
	})

	for {
		conn, err := env.Connect(addr)
		if err != nil {
			env.DelayFrom(50 * time.Millisecond)
			continue
		}
		if _, err := conn.Write([]byte("ping")); err != nil {
			conn.Close()
			env.DelayFrom(50 * time.Millisecond)
			continue
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			conn.Close()
			env.DelayFrom(50 * time.Millisecond)
			continue
		}
		if string(buf) != "ping" {
			panic("echo corrupted: " + string(buf))
		}
		conn.Close()
		return
	}
}

func TestRun(t *testing.T) {
	result := seedtest.Run(t, 1, pingPong)
	if result.Failed {
		t.Errorf("run failed: %s", result.Err)
	}
	if result.Seed != 1 {
		t.Errorf("expected seed 1, got %d", result.Seed)
	}
	if result.Checksum == 0 {
		t.Error("expected a nonzero checksum")
	}
	if len(result.LogOutput) == 0 {
		t.Error("expected captured log output")
	}
}

func TestRunCapturesFailure(t *testing.T) {
	result := seedtest.Run(t, 1, func(rt *deterministic.Runtime, env simulation.Environment) {
		panic("deliberate failure")
	})
	if !result.Failed {
		t.Fatal("expected the run to fail")
	}
	if !strings.Contains(result.Err, "deliberate failure") {
		t.Errorf("expected the panic message in the error, got %q", result.Err)
	}
}

func TestCheckDeterministic(t *testing.T) {
	seedtest.CheckDeterministic(t, 1, pingPong)
}

func TestCheckSeeds(t *testing.T) {
	seedtest.CheckSeeds(t, 5, pingPong)
}
