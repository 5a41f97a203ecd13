// Package actionvalue implements action-value estimates of a single
// state. An ActionValue evaluates the value of actions in a state and
// computes the expected value of the state under a policy.
package actionvalue

import (
	"fmt"

	"github.com/samuelfneumann/goacer/distribution"
)

// ActionValue is an estimate of the action values in a single state
type ActionValue interface {
	// Evaluate returns the value of taking action in the state
	Evaluate(action []float64) float64

	// Expectation returns the expected action value of the state when
	// actions are selected according to pi, i.e. the state value
	Expectation(pi distribution.Distribution) float64
}

// Presampled is an ActionValue which also holds an action already
// sampled from the policy, together with its action value.
type Presampled interface {
	ActionValue
	PolicySample() (action []float64, value float64)
}

// Discrete holds the action value of each action in a discrete action
// space.
type Discrete struct {
	Q []float64
}

// NewDiscrete returns a new Discrete action value
func NewDiscrete(q []float64) *Discrete {
	values := make([]float64, len(q))
	copy(values, q)
	return &Discrete{Q: values}
}

// Evaluate returns the action value of the action
func (d *Discrete) Evaluate(action []float64) float64 {
	if len(action) != 1 {
		panic(fmt.Sprintf("evaluate: discrete actions must be "+
			"1-dimensional \n\thave(%v)", len(action)))
	}
	return d.Q[int(action[0])]
}

// Expectation returns Σ π(a) Q(a)
func (d *Discrete) Expectation(pi distribution.Distribution) float64 {
	e, ok := pi.(distribution.Enumerable)
	if !ok {
		panic(fmt.Sprintf("expectation: policy %T is not enumerable", pi))
	}

	probs := e.AllProbs()
	if len(probs) != len(d.Q) {
		panic(fmt.Sprintf("expectation: policy and action values have "+
			"different numbers of actions \n\thave(%v, %v)", len(probs),
			len(d.Q)))
	}

	v := 0.0
	for i := range probs {
		v += probs[i] * d.Q[i]
	}
	return v
}

// Single evaluates actions in a continuous action space with a
// function, and holds the state value separately.
type Single struct {
	Evaluator func(action []float64) float64
	V         float64
}

// NewSingle returns a new Single action value
func NewSingle(evaluator func([]float64) float64, v float64) *Single {
	return &Single{Evaluator: evaluator, V: v}
}

// Evaluate returns the action value of the action
func (s *Single) Evaluate(action []float64) float64 {
	return s.Evaluator(action)
}

// Expectation returns the state value, which does not depend on pi
func (s *Single) Expectation(distribution.Distribution) float64 {
	return s.V
}

type presampled struct {
	ActionValue
	action []float64
	value  float64
}

// NewPresampled wraps an ActionValue with an action sampled from the
// policy and the value of that action. Action values computed by
// neural networks use this to evaluate a policy sample in the same
// forward pass as the other actions.
func NewPresampled(av ActionValue, action []float64,
	value float64) Presampled {
	a := make([]float64, len(action))
	copy(a, action)
	return &presampled{ActionValue: av, action: a, value: value}
}

// PolicySample returns the presampled action and its value
func (p *presampled) PolicySample() ([]float64, float64) {
	a := make([]float64, len(p.action))
	copy(a, p.action)
	return a, p.value
}
