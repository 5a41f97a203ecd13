package experiment

import (
	"github.com/pkg/errors"

	"github.com/samuelfneumann/goacer/agent"
	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/experiment/tracker"
	ts "github.com/samuelfneumann/goacer/timestep"
)

// Online runs an agent online in an environment, one step at a time.
// Episodes are restarted as soon as they end.
type Online struct {
	env.Environment
	agent.Agent

	step     ts.TimeStep // Current timestep
	started  bool        // Whether the agent has observed step
	trackers []tracker.Tracker
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The first parameter is the first
// timestep of the environment, and the t parameter is a slice of
// tracker.Tracker which determine what data is tracked.
func NewOnline(e env.Environment, a agent.Agent, first ts.TimeStep,
	t ...tracker.Tracker) *Online {
	return &Online{Environment: e, Agent: a, step: first, trackers: t}
}

// Step takes a single step of the agent in the environment and returns
// the resulting timestep. The agent performs whatever updates are due
// after observing the timestep.
func (o *Online) Step() (ts.TimeStep, error) {
	if !o.started {
		if err := o.Agent.ObserveFirst(o.step); err != nil {
			return ts.TimeStep{}, errors.Wrap(err, "step")
		}
		o.track(o.step)
		o.started = true
	}

	action := o.Agent.SelectAction(o.step)
	next, _ := o.Environment.Step(action)
	o.track(next)

	if err := o.Agent.Observe(action, next); err != nil {
		return ts.TimeStep{}, errors.Wrap(err, "step")
	}
	if err := o.Agent.Step(); err != nil {
		return ts.TimeStep{}, errors.Wrap(err, "step")
	}

	o.step = next
	if next.Last() {
		o.step = o.Environment.Reset()
		o.started = false
	}
	return next, nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return nil
}

// track tracks the current timestep by caching its data in each tracker
func (o *Online) track(t ts.TimeStep) {
	for _, tr := range o.trackers {
		tr.Track(t)
	}
}

// Evaluate runs the agent in evaluation mode for a number of episodes
// and returns the return of each episode. The agent is set back to
// training mode afterwards, if it was training before.
func Evaluate(a agent.Agent, e env.Environment, runs int) ([]float64,
	error) {
	if !a.IsEval() {
		a.Eval()
		defer a.Train()
	}

	returns := make([]float64, runs)
	for i := range returns {
		step := e.Reset()
		if err := a.ObserveFirst(step); err != nil {
			return nil, errors.Wrap(err, "evaluate")
		}

		for !step.Last() {
			action := a.SelectAction(step)
			step, _ = e.Step(action)
			returns[i] += step.Reward

			if err := a.Observe(action, step); err != nil {
				return nil, errors.Wrap(err, "evaluate")
			}
			if err := a.Step(); err != nil {
				return nil, errors.Wrap(err, "evaluate")
			}
		}
		a.EndEpisode()
	}
	return returns, nil
}
