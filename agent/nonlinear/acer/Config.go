package acer

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/samuelfneumann/goacer/agent"
	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/initwfn"
	"github.com/samuelfneumann/goacer/network"
	"github.com/samuelfneumann/goacer/solver"
)

// Type is the agent.Type of ACER configurations
const Type agent.Type = "ACER"

func init() {
	agent.Register(Type, Config{})
}

// ConfigError describes an invalid field of a Config
type ConfigError struct {
	Field string
	Err   error
}

func (c *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %v: %v", c.Field, c.Err)
}

func (c *ConfigError) Unwrap() error {
	return c.Err
}

// IsConfigError returns whether err was caused by an invalid Config
func IsConfigError(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}

func configError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Config implements a configuration of an ACER agent
type Config struct {
	// TMax is the maximum number of transitions in a single update
	TMax  int
	Gamma float64

	// Beta is the scale of the entropy bonus
	Beta float64

	PiLossCoef float64
	QLossCoef  float64

	// TruncationThreshold is the importance weight truncation c. It is
	// ignored if DisableTruncation is set.
	TruncationThreshold float64
	DisableTruncation   bool

	// Trust region of the policy update around the average policy.
	// The average policy is updated with decay TrustRegionAlpha.
	UseTrustRegion   bool
	TrustRegionAlpha float64
	TrustRegionDelta float64

	// NTimesReplay is the expected number of replay updates after each
	// online update, the number of replay updates is drawn from a
	// Poisson distribution.
	NTimesReplay        float64
	ReplayStartSize     int
	ReplayCapacity      int
	DisableOnlineUpdate bool

	// NSDNSamples is the number of actions sampled to estimate the
	// expected advantage in the stochastic dueling network of
	// continuous action agents
	NSDNSamples int

	MaxGradNorm     float64 // <= 0 if no clipping
	StatisticsDecay float64

	// ActDeterministically selects the most probable action in
	// evaluation mode. Training always samples from the policy.
	ActDeterministically bool

	// Recurrent determines whether a recurrent layer with HiddenSize
	// units is added before the policy and value heads
	Recurrent  bool
	HiddenSize int

	Layers      []int
	Activations []*network.Activation
	InitWFn     *initwfn.InitWFn
	Solver      *solver.Solver
}

// DefaultConfig returns the default ACER configuration
func DefaultConfig() Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}
	s, err := solver.NewDefaultRMSProp(1e-3)
	if err != nil {
		panic(fmt.Sprintf("defaultConfig: %v", err))
	}

	return Config{
		TMax:                5,
		Gamma:               0.99,
		Beta:                1e-2,
		PiLossCoef:          1.0,
		QLossCoef:           0.5,
		TruncationThreshold: 10,
		UseTrustRegion:      true,
		TrustRegionAlpha:    0.99,
		TrustRegionDelta:    1.0,
		NTimesReplay:        1,
		ReplayStartSize:     100,
		ReplayCapacity:      10000,
		NSDNSamples:         5,
		MaxGradNorm:         40,
		StatisticsDecay:     0.999,
		HiddenSize:          20,
		Layers:              []int{20},
		Activations:         []*network.Activation{network.LeakyReLU()},
		InitWFn:             init,
		Solver:              s,
	}
}

// Type returns the type of agent the Config creates
func (c Config) Type() agent.Type {
	return Type
}

// truncationThreshold returns the importance weight truncation
// threshold c, which is +Inf when truncation is disabled
func (c Config) truncationThreshold() float64 {
	if c.DisableTruncation {
		return math.Inf(1)
	}
	return c.TruncationThreshold
}

// Validate returns an error describing whether or not the
// configuration is valid
func (c Config) Validate() error {
	switch {
	case c.TMax < 1:
		return configError("TMax", "must be positive \n\thave(%v)", c.TMax)

	case c.Gamma < 0 || c.Gamma > 1:
		return configError("Gamma", "must be in [0, 1] \n\thave(%v)",
			c.Gamma)

	case c.Beta < 0:
		return configError("Beta", "must be non-negative \n\thave(%v)",
			c.Beta)

	case !c.DisableTruncation && !(c.TruncationThreshold >= 0):
		return configError("TruncationThreshold", "must be non-negative "+
			"\n\thave(%v)", c.TruncationThreshold)

	case c.UseTrustRegion && (c.TrustRegionAlpha < 0 ||
		c.TrustRegionAlpha > 1):
		return configError("TrustRegionAlpha", "must be in [0, 1] "+
			"\n\thave(%v)", c.TrustRegionAlpha)

	case c.UseTrustRegion && c.TrustRegionDelta < 0:
		return configError("TrustRegionDelta", "must be non-negative "+
			"\n\thave(%v)", c.TrustRegionDelta)

	case c.NTimesReplay < 0:
		return configError("NTimesReplay", "must be non-negative "+
			"\n\thave(%v)", c.NTimesReplay)

	case c.DisableOnlineUpdate && c.NTimesReplay == 0:
		return configError("DisableOnlineUpdate", "online updates cannot "+
			"be disabled when no replay updates are performed")

	case c.ReplayCapacity < 1:
		return configError("ReplayCapacity", "must be positive "+
			"\n\thave(%v)", c.ReplayCapacity)

	case c.ReplayStartSize < 0 || c.ReplayStartSize > c.ReplayCapacity:
		return configError("ReplayStartSize", "must be in [0, %v] "+
			"\n\thave(%v)", c.ReplayCapacity, c.ReplayStartSize)

	case c.NSDNSamples < 1:
		return configError("NSDNSamples", "must be positive \n\thave(%v)",
			c.NSDNSamples)

	case c.StatisticsDecay < 0 || c.StatisticsDecay > 1:
		return configError("StatisticsDecay", "must be in [0, 1] "+
			"\n\thave(%v)", c.StatisticsDecay)

	case c.Recurrent && c.HiddenSize < 1:
		return configError("HiddenSize", "must be positive \n\thave(%v)",
			c.HiddenSize)

	case len(c.Layers) != len(c.Activations):
		return configError("Activations", "invalid number of "+
			"activations \n\twant(%v) \n\thave(%v)", len(c.Layers),
			len(c.Activations))

	case c.InitWFn == nil:
		return configError("InitWFn", "weight initializer required")

	case c.Solver == nil:
		return configError("Solver", "solver required")
	}

	for i, size := range c.Layers {
		if size < 1 {
			return configError("Layers", "layer %v must have a positive "+
				"number of units \n\thave(%v)", i, size)
		}
	}
	return nil
}

// ValidAgent returns whether the argument agent is valid for the
// Config
func (c Config) ValidAgent(a agent.Agent) bool {
	_, ok := a.(*ACER)
	return ok
}

// CreateShared creates the parameters and replay buffer shared by ACER
// agents learning in the environment
func (c Config) CreateShared(e env.Environment, seed uint64) (agent.Shared,
	error) {
	return NewShared(e, c, seed)
}

// CreateAgent creates a single ACER agent which does not share its
// parameters with other agents
func (c Config) CreateAgent(e env.Environment, seed uint64) (agent.Agent,
	error) {
	shared, err := NewShared(e, c, seed)
	if err != nil {
		return nil, errors.Wrap(err, "createAgent")
	}
	return shared.NewAgent(seed)
}
