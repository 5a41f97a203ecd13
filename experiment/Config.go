// Package experiment implements functionality for running experiments:
// many agents learning asynchronously with shared state in copies of an
// environment, periodically evaluated on a deterministic version of the
// environment.
package experiment

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/goacer/agent"
	"github.com/samuelfneumann/goacer/environment/envconfig"
)

var log logrus.FieldLogger = logrus.WithField("pkg", "experiment")

// Config represents a configuration of an experiment
type Config struct {
	Agent agent.TypedConfig
	Env   envconfig.Config
	Seed  uint64

	// Processes is the number of agents learning asynchronously
	Processes int

	// Steps is the total number of environment steps taken by all agents
	Steps int

	// Every EvalFrequency total steps, the agent which took the step is
	// evaluated over EvalNRuns episodes. No evaluation is performed if
	// EvalFrequency is 0.
	EvalFrequency int
	EvalNRuns     int

	// SuccessfulScore stops training once an evaluation reaches this
	// average return, nil if training should not stop early
	SuccessfulScore *float64

	// CheckpointFrequency saves the shared parameters every
	// CheckpointFrequency total steps, 0 for no checkpoints
	CheckpointFrequency int

	ProgressBar bool
}

// Validate returns an error describing whether or not the configuration
// is valid
func (c Config) Validate() error {
	if c.Agent.Config == nil {
		return fmt.Errorf("validate: no agent configured")
	}
	if _, ok := c.Agent.Config.(agent.SharedConfig); !ok {
		return fmt.Errorf("validate: agent type %v cannot learn "+
			"asynchronously", c.Agent.Type)
	}
	if err := c.Agent.Config.Validate(); err != nil {
		return errors.Wrap(err, "validate: invalid agent")
	}
	if err := c.Env.Validate(); err != nil {
		return errors.Wrap(err, "validate: invalid environment")
	}

	switch {
	case c.Processes < 1:
		return fmt.Errorf("validate: processes must be positive "+
			"\n\thave(%v)", c.Processes)
	case c.Steps < 1:
		return fmt.Errorf("validate: steps must be positive \n\thave(%v)",
			c.Steps)
	case c.EvalFrequency < 0:
		return fmt.Errorf("validate: evaluation frequency must be "+
			"non-negative \n\thave(%v)", c.EvalFrequency)
	case c.EvalFrequency > 0 && c.EvalNRuns < 1:
		return fmt.Errorf("validate: number of evaluation runs must be "+
			"positive \n\thave(%v)", c.EvalNRuns)
	case c.SuccessfulScore != nil && c.EvalFrequency == 0:
		return fmt.Errorf("validate: a successful score requires " +
			"evaluation")
	case c.CheckpointFrequency < 0:
		return fmt.Errorf("validate: checkpoint frequency must be "+
			"non-negative \n\thave(%v)", c.CheckpointFrequency)
	}
	return nil
}

// FromMap returns the Config described by a map, such as a decoded
// YAML document. Keys are matched case-insensitively.
func FromMap(m map[string]interface{}) (Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Config{}, errors.Wrap(err, "fromMap")
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "fromMap")
	}
	return c, nil
}

// LoadConfig loads a Config from a YAML (or JSON) file
func LoadConfig(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrap(err, "loadConfig")
	}

	m := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, errors.Wrapf(err, "loadConfig: could not decode %v",
			filename)
	}

	c, err := FromMap(m)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loadConfig: could not decode %v",
			filename)
	}
	return c, nil
}

// SaveConfig saves a Config to a YAML file
func SaveConfig(filename string, c Config) error {
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "saveConfig")
	}

	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(err, "saveConfig")
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "saveConfig")
	}
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		return errors.Wrap(err, "saveConfig")
	}
	return nil
}
