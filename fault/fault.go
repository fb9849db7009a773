/*
Package fault contains composable scenarios that introduce trouble into a
running simulation to try and trigger rare bugs.

Scenarios run against a simulation.Environment, so the same scenario works
under the deterministic runtime and the real one. A scenario is usually
spawned alongside the system under test:

	h.Spawn(func() {
		fault.Repeat(fault.Sleep{Duration: time.Second}, 10).Run(h)
	})
*/
package fault

import (
	"time"

	"github.com/davidbarsky/simulation"
)

// A Scenario is a potentially challenging scenario that can be run against
// a system to see if it keeps behaving as expected.
type Scenario interface {
	Run(env simulation.Environment)
}

// Sleep is a scenario that simply sleeps.
type Sleep struct {
	Duration time.Duration
}

// Run implements Scenario.
func (s Sleep) Run(env simulation.Environment) {
	env.DelayFrom(s.Duration)
}

// Func adapts a plain function into a Scenario.
type Func func(env simulation.Environment)

// Run implements Scenario.
func (f Func) Run(env simulation.Environment) {
	f(env)
}

// Repeat repeats the given scenario a number of times.
func Repeat(scenario Scenario, times int) Scenario {
	return Func(func(env simulation.Environment) {
		for range times {
			scenario.Run(env)
		}
	})
}

// Sequence runs the given scenarios in sequence.
func Sequence(scenarios ...Scenario) Scenario {
	return Func(func(env simulation.Environment) {
		for _, s := range scenarios {
			s.Run(env)
		}
	})
}
