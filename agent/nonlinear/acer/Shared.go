package acer

import (
	"github.com/pkg/errors"

	"github.com/samuelfneumann/goacer/agent"
	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/expreplay"
	"github.com/samuelfneumann/goacer/paramserver"
)

// Shared holds the state shared by ACER agents learning
// asynchronously: the shared parameters with their moving average, and
// the replay buffer.
type Shared struct {
	config Config
	arch   architecture
	params *paramserver.ParamServer
	replay *expreplay.Episodic[transition]
}

// NewShared returns the shared state of ACER agents learning in
// environment e. Shared parameters are initialized with seed.
func NewShared(e env.Environment, c Config, seed uint64) (*Shared, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "newShared")
	}

	arch, err := newArchitecture(e, c)
	if err != nil {
		return nil, errors.Wrap(err, "newShared")
	}

	// A reference model initializes the shared parameters
	reference, err := newModel(arch, 1, false, "")
	if err != nil {
		return nil, errors.Wrap(err, "newShared: could not create model")
	}
	defer reference.Close()

	params, err := paramserver.New(reference.learnables, c.Solver,
		c.TrustRegionAlpha, c.MaxGradNorm)
	if err != nil {
		return nil, errors.Wrap(err, "newShared: could not create "+
			"parameter server")
	}

	replay, err := expreplay.New[transition](c.ReplayCapacity,
		c.ReplayStartSize, seed)
	if err != nil {
		return nil, errors.Wrap(err, "newShared: could not create replay "+
			"buffer")
	}

	return &Shared{
		config: c,
		arch:   arch,
		params: params,
		replay: replay,
	}, nil
}

// NewAgent returns a new ACER agent which learns with the shared state
func (s *Shared) NewAgent(seed uint64) (agent.Agent, error) {
	return newACER(s, seed)
}

// NumUpdates returns the number of updates applied to the shared
// parameters
func (s *Shared) NumUpdates() int {
	return s.params.NumUpdates()
}

// ReplayLen returns the number of transitions in the replay buffer
func (s *Shared) ReplayLen() int {
	return s.replay.Len()
}

// Save saves the shared parameters and their moving average to dir
func (s *Shared) Save(dir string) error {
	return s.params.Save(dir)
}

// Load loads the shared parameters and their moving average from dir.
// Agents see the loaded parameters after their next update, or after
// calling their own Load.
func (s *Shared) Load(dir string) error {
	return s.params.Load(dir)
}
