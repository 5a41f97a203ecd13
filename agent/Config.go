package agent

import (
	"github.com/samuelfneumann/goacer/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes
	CreateAgent(env environment.Environment, seed uint64) (Agent, error)

	// ValidAgent returns whether the argument agent is valid for the
	// Config
	ValidAgent(Agent) bool

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error

	// Type returns the type of agent the Config creates
	Type() Type
}

// SharedConfig is a Config for agents which can learn asynchronously
// with shared state
type SharedConfig interface {
	Config

	// CreateShared creates the state shared by agents learning in the
	// environment
	CreateShared(env environment.Environment, seed uint64) (Shared, error)
}
