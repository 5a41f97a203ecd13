package acer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/samuelfneumann/goacer/actionvalue"
	"github.com/samuelfneumann/goacer/distribution"
)

// Loss is a scalar loss together with its gradient with respect to the
// parameters of the policy distribution that the loss was computed
// for.
type Loss struct {
	Value float64
	Grad  []float64
}

// scale returns the loss scaled by c
func (l Loss) scale(c float64) Loss {
	grad := make([]float64, len(l.Grad))
	floats.ScaleTo(grad, c, l.Grad)
	return Loss{Value: c * l.Value, Grad: grad}
}

// add returns the sum of two losses over the same parameters
func (l Loss) add(other Loss) Loss {
	grad := make([]float64, len(l.Grad))
	floats.AddTo(grad, l.Grad, other.Grad)
	return Loss{Value: l.Value + other.Value, Grad: grad}
}

// PolicyGradient holds everything needed to compute the off-policy
// policy gradient loss of a single state-action pair
type PolicyGradient struct {
	Action    []float64
	Advantage float64

	// Pi is the current policy and Mu is the behaviour policy which
	// selected Action
	Pi distribution.Distribution
	Mu distribution.Distribution

	// ActionValue and V are the action values and state value of the
	// state under Pi, used for bias correction
	ActionValue actionvalue.ActionValue
	V           float64

	// TruncationThreshold is the importance weight truncation c. Use
	// math.Inf(1) to disable truncation.
	TruncationThreshold float64
}

// importanceWeight returns π(a)/μ(a), computed from log probabilities
func importanceWeight(pi, mu distribution.Distribution,
	action []float64) float64 {
	return math.Exp(pi.LogProb(action) - mu.LogProb(action))
}

// truncate returns min(ρ, c), treating weights which are not finite as
// zero so that actions the behaviour policy could never have taken do
// not contribute to the gradient.
func truncate(rho, c float64) float64 {
	w := math.Min(rho, c)
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	return w
}

// correctionWeight returns max(0, 1 - c/ρ), the weight of an action
// with importance weight ρ = π/μ in the bias correction term.
func correctionWeight(pi, mu, c float64) float64 {
	switch {
	case pi <= 0:
		return 0
	case math.IsInf(c, 1):
		return 0
	case c == 0:
		return 1
	}

	w := 1 - c*mu/pi
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	return w
}

// PolicyGradientLoss returns the truncated importance sampling policy
// gradient loss with bias correction:
//
//	-(min(ρ, c) A log π(a) + E_{b ~ π}[max(0, 1 - c/ρ(b)) (Q(b) - V) log π(b)])
//
// where ρ = π/μ. For enumerable policies the bias correction term is
// computed exactly. For other policies, a single action is sampled
// from π, or taken from the action value if it is presampled.
//
// Only the log probabilities of π are differentiated: the importance
// weights and the bias correction weights are constants.
func PolicyGradientLoss(p PolicyGradient) Loss {
	c := p.TruncationThreshold
	if c < 0 || math.IsNaN(c) {
		panic(fmt.Sprintf("policyGradientLoss: truncation threshold must "+
			"be non-negative \n\thave(%v)", c))
	}

	rho := importanceWeight(p.Pi, p.Mu, p.Action)
	weight := truncate(rho, c) * p.Advantage

	// Truncated importance sampling term
	objective := weight * p.Pi.LogProb(p.Action)
	grad := p.Pi.LogProbGrad(p.Action)
	floats.Scale(weight, grad)

	// Bias correction term
	if e, ok := p.Pi.(distribution.Enumerable); ok {
		mu, ok := p.Mu.(distribution.Enumerable)
		if !ok {
			panic(fmt.Sprintf("policyGradientLoss: policy %T and behaviour "+
				"policy %T must both be enumerable", p.Pi, p.Mu))
		}

		piProbs, muProbs := e.AllProbs(), mu.AllProbs()
		piLogProbs := e.AllLogProbs()
		for b := range piProbs {
			w := correctionWeight(piProbs[b], muProbs[b], c)
			if w == 0 {
				continue
			}
			action := []float64{float64(b)}
			adv := p.ActionValue.Evaluate(action) - p.V
			coef := w * piProbs[b] * adv

			objective += coef * piLogProbs[b]
			floats.AddScaled(grad, coef, p.Pi.LogProbGrad(action))
		}
	} else if !math.IsInf(c, 1) {
		var action []float64
		var q float64
		if s, ok := p.ActionValue.(actionvalue.Presampled); ok {
			action, q = s.PolicySample()
		} else {
			action = p.Pi.Sample()
			q = p.ActionValue.Evaluate(action)
		}

		logPi := p.Pi.LogProb(action)
		ratio := math.Exp(p.Mu.LogProb(action) - logPi)
		w := 1 - c*ratio
		if c == 0 {
			w = 1
		}
		if w > 0 && !math.IsNaN(w) {
			coef := w * (q - p.V)
			objective += coef * logPi
			floats.AddScaled(grad, coef, p.Pi.LogProbGrad(action))
		}
	}

	floats.Scale(-1, grad)
	return Loss{Value: -objective, Grad: grad}
}

// OnPolicyLoss returns the policy gradient loss -A log π(a) of an
// action selected by π itself
func OnPolicyLoss(action []float64, advantage float64,
	pi distribution.Distribution) Loss {
	grad := pi.LogProbGrad(action)
	floats.Scale(-advantage, grad)
	return Loss{Value: -advantage * pi.LogProb(action), Grad: grad}
}

// EntropyLoss returns the loss -β H(π) which encourages exploration
func EntropyLoss(pi distribution.Distribution, beta float64) Loss {
	grad := pi.EntropyGrad()
	floats.Scale(-beta, grad)
	return Loss{Value: -beta * pi.Entropy(), Grad: grad}
}
