// Package abc implements the ABC environment, a small sequence
// memorisation task used to check that agents learn at all.
//
// The environment consists of a chain of Size states. In each state
// exactly one action is correct: action (state + offset) mod Size,
// where the offset is drawn at the start of each round. Taking the
// correct action moves the agent one state along the chain and taking
// the correct action in the final state of the chain yields a reward
// of 1. Taking a wrong action ends the episode in episodic mode, or
// restarts the chain in continuing mode. In continuing mode, finishing
// the chain also restarts it.
//
// Observations are the concatenation of a one-hot encoding of the
// current state (Size + 1 values, the last one being the terminal
// state) and a one-hot encoding of the offset (MaxOffset values, all
// zero when the offset is zero). When partially observable, the offset
// is only observable in the first state of the chain.
//
// With continuous actions, an action is a vector of Size values in
// [-1, 1]. A deterministic environment takes the argmax of this vector
// as the discrete action, while a stochastic environment samples the
// discrete action from the softmax of the vector.
package abc

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/goacer/environment"
	ts "github.com/samuelfneumann/goacer/timestep"
	"github.com/samuelfneumann/goacer/utils/floatutils"
)

// MaxOffset is the largest offset drawn by a stochastic ABC environment
const MaxOffset int = 1

// ABC implements the ABC environment
type ABC struct {
	size                int
	discrete            bool
	episodic            bool
	partiallyObservable bool
	deterministic       bool
	discount            float64

	state  int
	offset int

	rng         *rand.Rand
	currentStep ts.TimeStep
}

// New returns a new ABC environment with a chain of size states and
// its first TimeStep.
//
// If discrete is true, actions are integers in [0, size). Otherwise,
// actions are continuous vectors of length size. If episodic is false,
// episodes never end on their own and should be wrapped with an
// environment.Ender. A deterministic ABC environment always uses an
// offset of 0 and selects discrete actions from continuous ones using
// argmax.
func New(size int, discrete, episodic, partiallyObservable,
	deterministic bool, discount float64,
	seed uint64) (*ABC, ts.TimeStep, error) {
	if size < 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: size must be positive")
	}
	if discount < 0 || discount > 1 {
		return nil, ts.TimeStep{}, fmt.Errorf("new: discount must be in "+
			"[0, 1] \n\thave(%v)", discount)
	}

	a := &ABC{
		size:                size,
		discrete:            discrete,
		episodic:            episodic,
		partiallyObservable: partiallyObservable,
		deterministic:       deterministic,
		discount:            discount,
		rng:                 rand.New(rand.NewSource(seed)),
	}

	return a, a.Reset(), nil
}

// Reset resets the environment to the first state of the chain and
// returns the first TimeStep of a new episode.
func (a *ABC) Reset() ts.TimeStep {
	a.restart()
	a.currentStep = ts.New(ts.First, 0, a.discount, a.observation(), 0)
	return a.currentStep
}

// restart moves the agent to the first state of the chain and draws a
// new offset
func (a *ABC) restart() {
	a.state = 0
	if a.deterministic {
		a.offset = 0
	} else {
		a.offset = a.rng.Intn(MaxOffset + 1)
	}
}

// Step takes an action in the environment and returns the next TimeStep
// as well as whether or not the episode has ended.
func (a *ABC) Step(action mat.Vector) (ts.TimeStep, bool) {
	if a.currentStep.Last() {
		panic("step: cannot step a finished episode, call Reset()")
	}

	reward := 0.0
	end := ts.NotEnded

	if a.toDiscrete(action) == a.correctAction() {
		if a.state == a.size-1 {
			reward = 1.0
			if a.episodic {
				a.state = a.size
				end = ts.Terminal
			} else {
				a.restart()
			}
		} else {
			a.state++
		}
	} else {
		if a.episodic {
			a.state = a.size
			end = ts.Terminal
		} else {
			a.restart()
		}
	}

	stepType := ts.Mid
	if end != ts.NotEnded {
		stepType = ts.Last
	}

	step := ts.New(stepType, reward, a.discount, a.observation(),
		a.currentStep.Number+1)
	step.EndType = end
	a.currentStep = step

	return step, step.Last()
}

// correctAction returns the action that moves the agent along the chain
func (a *ABC) correctAction() int {
	return (a.state + a.offset) % a.size
}

// toDiscrete converts an action taken by the agent into an integer
// action
func (a *ABC) toDiscrete(action mat.Vector) int {
	if a.discrete {
		if action.Len() != 1 {
			panic(fmt.Sprintf("toDiscrete: invalid action dimension "+
				"\n\twant(1) \n\thave(%v)", action.Len()))
		}
		return int(action.AtVec(0))
	}

	if action.Len() != a.size {
		panic(fmt.Sprintf("toDiscrete: invalid action dimension "+
			"\n\twant(%v) \n\thave(%v)", a.size, action.Len()))
	}

	// Actions outside the action bounds are clipped
	values := make([]float64, a.size)
	for i := range values {
		values[i] = floatutils.Clip(action.AtVec(i), -1, 1)
	}

	if a.deterministic {
		return floats.MaxIdx(values)
	}

	// Sample from the softmax of the action
	max := floats.Max(values)
	for i := range values {
		values[i] = math.Exp(values[i] - max)
	}
	return int(distuv.NewCategorical(values, a.rng).Rand())
}

// observation returns the current observation of the environment
func (a *ABC) observation() mat.Vector {
	obs := mat.NewVecDense(a.ObservationSpec().Dims(), nil)
	obs.SetVec(a.state, 1.0)

	if a.offset > 0 && (!a.partiallyObservable || a.state == 0) {
		obs.SetVec(a.size+a.offset, 1.0)
	}
	return obs
}

// DiscountSpec returns the discount specification of the environment
func (a *ABC) DiscountSpec() environment.Spec {
	shape := mat.NewVecDense(1, nil)
	bound := mat.NewVecDense(1, []float64{a.discount})
	return environment.NewSpec(shape, environment.Discount, bound, bound,
		environment.Continuous)
}

// ObservationSpec returns the observation specification of the
// environment
func (a *ABC) ObservationSpec() environment.Spec {
	dims := a.size + 1 + MaxOffset
	shape := mat.NewVecDense(dims, nil)
	lowerBound := mat.NewVecDense(dims, nil)
	upperBound := mat.NewVecDense(dims, nil)
	for i := 0; i < dims; i++ {
		upperBound.SetVec(i, 1.0)
	}

	return environment.NewSpec(shape, environment.Observation, lowerBound,
		upperBound, environment.Discrete)
}

// ActionSpec returns the action specification of the environment
func (a *ABC) ActionSpec() environment.Spec {
	if a.discrete {
		shape := mat.NewVecDense(1, nil)
		lowerBound := mat.NewVecDense(1, []float64{0})
		upperBound := mat.NewVecDense(1, []float64{float64(a.size - 1)})
		return environment.NewSpec(shape, environment.Action, lowerBound,
			upperBound, environment.Discrete)
	}

	shape := mat.NewVecDense(a.size, nil)
	lowerBound := mat.NewVecDense(a.size, nil)
	upperBound := mat.NewVecDense(a.size, nil)
	for i := 0; i < a.size; i++ {
		lowerBound.SetVec(i, -1.0)
		upperBound.SetVec(i, 1.0)
	}
	return environment.NewSpec(shape, environment.Action, lowerBound,
		upperBound, environment.Continuous)
}

// String implements the fmt.Stringer interface
func (a *ABC) String() string {
	return fmt.Sprintf("ABC | Size: %v  |  State: %v  |  Offset: %v",
		a.size, a.state, a.offset)
}
