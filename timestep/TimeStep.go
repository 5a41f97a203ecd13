// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// EndType denotes why an episode ended. Only TimeSteps of type Last
// carry an EndType other than NotEnded.
type EndType int

const (
	NotEnded EndType = iota

	// Terminal denotes that the environment reached a terminal state,
	// so no value should be bootstrapped from the last observation
	Terminal

	// Timeout denotes that the episode was cut off, for example by a
	// step limit. The last observation is not terminal.
	Timeout
)

func (e EndType) String() string {
	switch e {
	case Terminal:
		return "Terminal"
	case Timeout:
		return "Timeout"
	default:
		return "NotEnded"
	}
}

// TimeStep packages together a single timestep in an environment
type TimeStep struct {
	StepType
	EndType
	Reward      float64
	Discount    float64
	Observation mat.Vector
	Number      int
}

// New returns a new TimeStep. If the StepType is Last, the episode is
// considered to have ended in a terminal state.
func New(t StepType, r, d float64, o mat.Vector, n int) TimeStep {
	end := NotEnded
	if t == Last {
		end = Terminal
	}
	return TimeStep{t, end, r, d, o, n}
}

// First returns whether a TimeStep is the first in an environment
func (t TimeStep) First() bool {
	return t.StepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t TimeStep) Mid() bool {
	return t.StepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t TimeStep) Last() bool {
	return t.StepType == Last
}

// Terminal returns whether the TimeStep ended the episode in a
// terminal state
func (t TimeStep) Terminal() bool {
	return t.Last() && t.EndType == Terminal
}

// Timeout returns whether the TimeStep ended the episode due to a
// time limit
func (t TimeStep) Timeout() bool {
	return t.Last() && t.EndType == Timeout
}

// SetEnd sets the EndType of the TimeStep. Setting an EndType other
// than NotEnded makes the TimeStep the last in its episode.
func (t *TimeStep) SetEnd(e EndType) {
	t.EndType = e
	if e != NotEnded {
		t.StepType = Last
	}
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  End: %v  |  Reward:  %.2f  |  " +
		"Discount: %.2f  |  Step Number:  %v"

	return fmt.Sprintf(str, t.StepType, t.EndType, t.Reward, t.Discount,
		t.Number)
}
