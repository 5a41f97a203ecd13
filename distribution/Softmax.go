package distribution

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// SoftmaxDist is a categorical distribution parameterized by logits
type SoftmaxDist struct {
	logits   []float64
	logProbs []float64
	probs    []float64
	entropy  float64

	src rand.Source
}

// NewSoftmax returns a new softmax distribution with the given logits.
// The src parameter is the source of randomness used for sampling, if
// nil then the global source is used.
func NewSoftmax(logits []float64, src rand.Source) *SoftmaxDist {
	if len(logits) == 0 {
		panic("newSoftmax: at least one logit required")
	}

	l := make([]float64, len(logits))
	copy(l, logits)

	// Compute log probabilities with the log-sum-exp trick for stability
	lse := floats.LogSumExp(l)
	logProbs := make([]float64, len(l))
	probs := make([]float64, len(l))
	entropy := 0.0
	for i := range l {
		logProbs[i] = l[i] - lse
		probs[i] = math.Exp(logProbs[i])
		if probs[i] > 0 {
			entropy -= probs[i] * logProbs[i]
		}
	}

	return &SoftmaxDist{
		logits:   l,
		logProbs: logProbs,
		probs:    probs,
		entropy:  entropy,
		src:      src,
	}
}

// index converts an action to its index
func (s *SoftmaxDist) index(action []float64) int {
	if len(action) != 1 {
		panic(fmt.Sprintf("index: softmax actions must be 1-dimensional "+
			"\n\thave(%v)", len(action)))
	}
	a := int(action[0])
	if a < 0 || a >= len(s.probs) {
		panic(fmt.Sprintf("index: action %v out of range [0, %v)", a,
			len(s.probs)))
	}
	return a
}

// Sample samples an action from the distribution
func (s *SoftmaxDist) Sample() []float64 {
	cat := distuv.NewCategorical(s.probs, s.src)
	return []float64{cat.Rand()}
}

// MostProbable returns the action of highest probability
func (s *SoftmaxDist) MostProbable() []float64 {
	return []float64{float64(floats.MaxIdx(s.probs))}
}

// LogProb returns the log probability of an action
func (s *SoftmaxDist) LogProb(action []float64) float64 {
	return s.logProbs[s.index(action)]
}

// Prob returns the probability of an action
func (s *SoftmaxDist) Prob(action []float64) float64 {
	return s.probs[s.index(action)]
}

// Entropy returns the entropy of the distribution
func (s *SoftmaxDist) Entropy() float64 {
	return s.entropy
}

// KL returns KL(s ‖ q)
func (s *SoftmaxDist) KL(q Distribution) float64 {
	other, ok := q.(*SoftmaxDist)
	if !ok {
		mismatch("kl", s, q)
	}

	kl := 0.0
	for i := range s.probs {
		if s.probs[i] > 0 {
			kl += s.probs[i] * (s.logProbs[i] - other.logProbs[i])
		}
	}
	return kl
}

// Params returns the logits of the distribution
func (s *SoftmaxDist) Params() []float64 {
	p := make([]float64, len(s.logits))
	copy(p, s.logits)
	return p
}

// LogProbGrad returns the gradient of the log probability of an action
// with respect to the logits: e_a - π.
func (s *SoftmaxDist) LogProbGrad(action []float64) []float64 {
	a := s.index(action)
	grad := make([]float64, len(s.probs))
	for i := range grad {
		grad[i] = -s.probs[i]
	}
	grad[a] += 1.0
	return grad
}

// EntropyGrad returns the gradient of the entropy with respect to the
// logits: -π ⊙ (log π + H).
func (s *SoftmaxDist) EntropyGrad() []float64 {
	grad := make([]float64, len(s.probs))
	for i := range grad {
		grad[i] = -s.probs[i] * (s.logProbs[i] + s.entropy)
	}
	return grad
}

// KLGrad returns the gradient of KL(p ‖ s) with respect to the logits
// of s: π - p.
func (s *SoftmaxDist) KLGrad(p Distribution) []float64 {
	other, ok := p.(*SoftmaxDist)
	if !ok {
		mismatch("klGrad", s, p)
	}

	grad := make([]float64, len(s.probs))
	floats.SubTo(grad, s.probs, other.probs)
	return grad
}

// Copy returns a copy of the distribution
func (s *SoftmaxDist) Copy() Distribution {
	return NewSoftmax(s.logits, s.src)
}

// NumActions returns the number of actions
func (s *SoftmaxDist) NumActions() int {
	return len(s.probs)
}

// AllProbs returns the probability of each action
func (s *SoftmaxDist) AllProbs() []float64 {
	p := make([]float64, len(s.probs))
	copy(p, s.probs)
	return p
}

// AllLogProbs returns the log probability of each action
func (s *SoftmaxDist) AllLogProbs() []float64 {
	p := make([]float64, len(s.logProbs))
	copy(p, s.logProbs)
	return p
}
