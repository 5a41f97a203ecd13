// Package envconfig provides configuration structs for configuring
// environments. Environment configurations in this package are JSON
// and YAML serializable.
package envconfig

import (
	"fmt"

	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/environment/abc"
	ts "github.com/samuelfneumann/goacer/timestep"
)

// EnvName stores the name of environments that can be configured with
// this package
type EnvName string

// Environments available for configuration
const (
	ABC EnvName = "ABC"
)

// Config implements a specific configuration of a specific environment.
//
// Training environments are created as described by the Config. Evaluation
// environments are always episodic and deterministic so that the
// return of an evaluation episode measures what the agent has learned.
// Both are cut off after EpisodeCutoff steps.
type Config struct {
	Environment         EnvName
	Size                int
	ContinuousActions   bool
	Episodic            bool
	PartiallyObservable bool
	Deterministic       bool

	// EpisodeCutoff ends episodes after this many steps as
	// time-outs, <= 0 if there is no cutoff
	EpisodeCutoff int
	Discount      float64
}

// NewConfig returns a new environment Config
func NewConfig(envName EnvName, size int, continuousActions, episodic,
	partiallyObservable, deterministic bool, episodeCutoff int,
	discount float64) Config {
	return Config{
		Environment:         envName,
		Size:                size,
		ContinuousActions:   continuousActions,
		Episodic:            episodic,
		PartiallyObservable: partiallyObservable,
		Deterministic:       deterministic,
		EpisodeCutoff:       episodeCutoff,
		Discount:            discount,
	}
}

// Validate returns an error describing whether or not the configuration
// is valid
func (c Config) Validate() error {
	if c.Environment != ABC {
		return fmt.Errorf("validate: no such environment %v", c.Environment)
	}
	if c.Size < 1 {
		return fmt.Errorf("validate: size must be positive \n\thave(%v)",
			c.Size)
	}
	if !c.Episodic && c.EpisodeCutoff <= 0 {
		return fmt.Errorf("validate: continuing environments require an " +
			"episode cutoff")
	}
	if c.Discount < 0 || c.Discount > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Discount)
	}
	return nil
}

// Create returns the training environment described by the Config as
// well as the first timestep of the environment.
func (c Config) Create(seed uint64) (env.Environment, ts.TimeStep, error) {
	return c.create(seed, c.Episodic, c.Deterministic, c.EpisodeCutoff)
}

// CreateEval returns the evaluation environment described by the
// Config as well as its first timestep. Evaluation environments are
// episodic and deterministic.
func (c Config) CreateEval(seed uint64) (env.Environment, ts.TimeStep,
	error) {
	return c.create(seed, true, true, c.EpisodeCutoff)
}

func (c Config) create(seed uint64, episodic, deterministic bool,
	cutoff int) (env.Environment, ts.TimeStep, error) {
	if err := c.Validate(); err != nil {
		return nil, ts.TimeStep{}, err
	}

	switch c.Environment {
	case ABC:
		e, step, err := abc.New(c.Size, !c.ContinuousActions, episodic,
			c.PartiallyObservable, deterministic, c.Discount, seed)
		if err != nil {
			return nil, ts.TimeStep{}, fmt.Errorf("create: could not "+
				"create %v: %v", c.Environment, err)
		}

		if cutoff > 0 {
			return env.Wrap(e, env.NewStepLimit(cutoff)), step, nil
		}
		return e, step, nil
	}

	return nil, ts.TimeStep{}, fmt.Errorf("create: cannot create "+
		"environment %v, no such environment", c.Environment)
}
