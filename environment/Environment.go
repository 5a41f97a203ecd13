// Package environment outlines the interfaces and sturcts needed to implement
// concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goacer/timestep"
)

// Environment implements a simualted environment. Environments start
// ready to use, but Reset should be called before the first episode to
// obtain the first TimeStep.
type Environment interface {
	Reset() ts.TimeStep // Resets between episodes

	// Step takes an action in the environment, returning the next
	// TimeStep and whether or not the episode ended
	Step(action mat.Vector) (ts.TimeStep, bool)

	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Ender determines when episodes should be ended. If an episode should
// end, End() modifies the TimeStep so that it is the last in the
// episode and records why the episode ended.
type Ender interface {
	End(*ts.TimeStep) bool
}

// ended wraps an Environment so that Enders may cut episodes short
type ended struct {
	Environment
	enders []Ender
}

// Wrap returns an Environment whose episodes end whenever the
// underlying environment ends an episode, or whenever any of the
// argument Enders determines the episode should end.
func Wrap(env Environment, enders ...Ender) Environment {
	if len(enders) == 0 {
		return env
	}
	return &ended{env, enders}
}

// Step takes a step in the wrapped Environment
func (e *ended) Step(action mat.Vector) (ts.TimeStep, bool) {
	step, last := e.Environment.Step(action)
	if last {
		return step, last
	}

	for _, ender := range e.enders {
		if ender.End(&step) {
			return step, true
		}
	}
	return step, false
}
