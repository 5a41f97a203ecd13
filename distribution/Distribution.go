// Package distribution implements the probability distributions that
// policies output.
//
// A Distribution is parameterized by a flat vector of distribution
// parameters, for example the logits of a softmax distribution or the
// mean and standard deviation of a Gaussian distribution. Neural network
// policies predict these parameters. Besides the usual queries
// (sampling, probabilities, entropy, KL divergence), each Distribution
// also returns gradients of its log probability, entropy, and KL
// divergence with respect to its parameters. Losses built from these
// gradients can then be backpropagated through the policy network which
// predicted the parameters.
//
// Actions are represented as []float64. Discrete actions are
// 1-dimensional and hold the index of the action.
package distribution

import "fmt"

// Distribution is a probability distribution over actions
type Distribution interface {
	// Sample samples an action from the Distribution
	Sample() []float64

	// MostProbable returns the action with the highest probability
	// (mass or density)
	MostProbable() []float64

	LogProb(action []float64) float64
	Prob(action []float64) float64
	Entropy() float64

	// KL returns the KL divergence KL(d ‖ q) from the receiver d to q
	KL(q Distribution) float64

	// Params returns a copy of the distribution parameters
	Params() []float64

	// LogProbGrad returns the gradient of the log probability of action
	// with respect to the distribution parameters
	LogProbGrad(action []float64) []float64

	// EntropyGrad returns the gradient of the entropy with respect to
	// the distribution parameters
	EntropyGrad() []float64

	// KLGrad returns the gradient of KL(p ‖ d) with respect to the
	// distribution parameters of the receiver d
	KLGrad(p Distribution) []float64

	// Copy returns a copy of the Distribution which does not share
	// parameters with the receiver
	Copy() Distribution
}

// Enumerable is a Distribution over a finite set of actions
type Enumerable interface {
	Distribution

	NumActions() int

	// AllProbs returns the probability of each action
	AllProbs() []float64

	// AllLogProbs returns the log probability of each action
	AllLogProbs() []float64
}

// mismatch panics when two distributions of different types are used
// together
func mismatch(op string, d, q Distribution) {
	panic(fmt.Sprintf("%v: distributions must have the same type "+
		"\n\thave(%T, %T)", op, d, q))
}
