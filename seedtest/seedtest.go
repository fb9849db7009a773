// Package seedtest runs simulation programs across seeds and checks that
// they are deterministic.
//
// A program under test is a function that builds its tasks on an
// Environment. The program signals failure by panicking (from any task);
// the panic is captured and reported in the run result. Programs must not
// call t.Fatal from inside a task, since tasks do not run on the test
// goroutine.
package seedtest

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/davidbarsky/simulation"
	"github.com/davidbarsky/simulation/deterministic"
	"github.com/davidbarsky/simulation/internal/prettylog"
	"github.com/davidbarsky/simulation/seedstore"
)

// A Program is the unit under test. It runs inside the runtime's root task:
// it spawns whatever it needs on env and returns; the runtime then drives
// everything to completion.
type Program func(rt *deterministic.Runtime, env simulation.Environment)

// A RunResult describes one run of a program with one seed.
type RunResult struct {
	Seed      int64
	Checksum  uint64
	Failed    bool
	Err       string
	LogOutput []byte
}

// Run runs program once with the given seed and logs its output through the
// console formatter.
func Run(t *testing.T, seed int64, program Program) *RunResult {
	t.Helper()

	var logs bytes.Buffer
	rt := deterministic.NewWithConfig(deterministic.Config{
		Seed:      seed,
		LogOutput: &logs,
		LogLevel:  slog.LevelDebug,
	})

	err := rt.BlockOn(func() {
		program(rt, rt.LocalhostHandle())
	})

	result := &RunResult{
		Seed:      seed,
		Checksum:  rt.Checksum(),
		LogOutput: bytes.Clone(logs.Bytes()),
	}
	if err != nil {
		result.Failed = true
		result.Err = err.Error()
	}

	b := new(bytes.Buffer)
	fmt.Fprintf(b, "\n> running [seed=%d]\n", seed)
	w := prettylog.NewWriter(b)
	out := result.LogOutput
	for len(out) > 0 {
		idx := bytes.IndexByte(out, '\n')
		if idx == -1 {
			idx = len(out) - 1
		}
		w.Write(out[:idx+1])
		out = out[idx+1:]
	}
	t.Log(b.String())

	return result
}

// CheckDeterministic runs program twice with the same seed and fails the
// test if the two runs diverge in trace checksum or log output.
func CheckDeterministic(t *testing.T, seed int64, program Program) {
	t.Helper()

	run1 := Run(t, seed, program)
	run2 := Run(t, seed, program)

	if run1.Checksum != run2.Checksum {
		t.Errorf("checksums differ: non-determinism found: %x != %x",
			run1.Checksum, run2.Checksum)
	}
	if diff := cmp.Diff(string(run1.LogOutput), string(run2.LogOutput)); diff != "" {
		t.Errorf("logs differ: non-determinism found:\n%s", diff)
	}
}

// CheckSeeds runs program once for each seed in [0, numSeeds) and fails the
// test for every seed whose run fails. If the SIMULATION_SEEDSTORE
// environment variable names a file, failing runs are recorded there so
// they can be replayed later.
func CheckSeeds(t *testing.T, numSeeds int64, program Program) {
	t.Helper()

	var store *seedstore.Store
	if path := os.Getenv("SIMULATION_SEEDSTORE"); path != "" {
		var err error
		store, err = seedstore.Open(path)
		if err != nil {
			t.Fatalf("opening seedstore: %s", err)
		}
		defer store.Close()
	}

	for seed := int64(0); seed < numSeeds; seed++ {
		run := Run(t, seed, program)
		if !run.Failed {
			continue
		}
		t.Errorf("seed %d failed: %s", run.Seed, run.Err)
		if store != nil {
			if err := store.Put(t.Name(), seedstore.Record{
				Seed:      run.Seed,
				Checksum:  run.Checksum,
				Err:       run.Err,
				LogOutput: run.LogOutput,
			}); err != nil {
				t.Errorf("recording seed %d: %s", run.Seed, err)
			}
		}
	}
}
