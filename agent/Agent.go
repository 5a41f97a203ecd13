// Package agent defines an agent interface
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goacer/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Step performs the updates which are due
	Step() error

	// Observe records that an action lead to some timestep
	Observe(action mat.Vector, nextObs timestep.TimeStep) error

	// ObserveFirst records the first timestep in an episode
	ObserveFirst(timestep.TimeStep) error

	// EndEpisode performs cleanup at the end of an episode
	EndEpisode()
}

// Policy represents a policy that an agent can have.
//
// Policies determine how agents select actions. For a given agent, the
// Policy and Learner should have pointers to the same weights so that
// any changes the learner makes to the weights are reflected in the
// actions the Policy chooses
type Policy interface {
	SelectAction(t timestep.TimeStep) *mat.VecDense
	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// Saver is an agent whose learned parameters can be saved to and
// loaded from a directory
type Saver interface {
	Save(dir string) error
	Load(dir string) error
}

// Statistic is a named scalar statistic reported by an agent, such as
// an average loss
type Statistic struct {
	Name  string
	Value float64
}

// Reporter is an agent that reports statistics about its learning
type Reporter interface {
	Statistics() []Statistic
}

// Shared holds the state shared by many agents learning
// asynchronously, for example their shared parameters
type Shared interface {
	Saver

	// NewAgent returns a new agent which learns with the shared state
	NewAgent(seed uint64) (Agent, error)
}
