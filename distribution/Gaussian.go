package distribution

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// GaussianDist is a multivariate Gaussian distribution with diagonal
// covariance, parameterized by its mean μ and standard deviation σ.
// Its parameters are [μ, σ].
type GaussianDist struct {
	mean []float64
	std  []float64

	normal *distmv.Normal
	src    rand.Source
}

// NewGaussian returns a new diagonal Gaussian distribution. The src
// parameter is the source of randomness used for sampling, if nil then
// the global source is used.
func NewGaussian(mean, std []float64, src rand.Source) (*GaussianDist,
	error) {
	if len(mean) == 0 {
		return nil, fmt.Errorf("newGaussian: at least one dimension required")
	}
	if len(mean) != len(std) {
		return nil, fmt.Errorf("newGaussian: mean and standard deviation "+
			"must have the same length \n\thave(%v, %v)", len(mean),
			len(std))
	}

	m := make([]float64, len(mean))
	copy(m, mean)
	s := make([]float64, len(std))
	copy(s, std)

	variance := make([]float64, len(s))
	for i := range s {
		if !(s[i] > 0) || math.IsInf(s[i], 1) {
			return nil, fmt.Errorf("newGaussian: standard deviation must "+
				"be positive and finite \n\thave(%v)", s[i])
		}
		variance[i] = s[i] * s[i]
	}

	normal, ok := distmv.NewNormal(m, mat.NewDiagDense(len(variance),
		variance), src)
	if !ok {
		return nil, fmt.Errorf("newGaussian: covariance is not positive " +
			"definite")
	}

	return &GaussianDist{
		mean:   m,
		std:    s,
		normal: normal,
		src:    src,
	}, nil
}

// Mean returns the mean of the distribution
func (g *GaussianDist) Mean() []float64 {
	m := make([]float64, len(g.mean))
	copy(m, g.mean)
	return m
}

// Std returns the standard deviation of the distribution
func (g *GaussianDist) Std() []float64 {
	s := make([]float64, len(g.std))
	copy(s, g.std)
	return s
}

// Dims returns the dimension of actions
func (g *GaussianDist) Dims() int {
	return len(g.mean)
}

func (g *GaussianDist) check(action []float64) {
	if len(action) != len(g.mean) {
		panic(fmt.Sprintf("gaussian: invalid action dimension "+
			"\n\twant(%v) \n\thave(%v)", len(g.mean), len(action)))
	}
}

// Sample samples an action from the distribution
func (g *GaussianDist) Sample() []float64 {
	return g.normal.Rand(nil)
}

// MostProbable returns the mean of the distribution
func (g *GaussianDist) MostProbable() []float64 {
	return g.Mean()
}

// LogProb returns the log density of an action
func (g *GaussianDist) LogProb(action []float64) float64 {
	g.check(action)
	return g.normal.LogProb(action)
}

// Prob returns the density of an action
func (g *GaussianDist) Prob(action []float64) float64 {
	return math.Exp(g.LogProb(action))
}

// Entropy returns the entropy of the distribution
func (g *GaussianDist) Entropy() float64 {
	return g.normal.Entropy()
}

// KL returns KL(g ‖ q)
func (g *GaussianDist) KL(q Distribution) float64 {
	other, ok := q.(*GaussianDist)
	if !ok {
		mismatch("kl", g, q)
	}

	kl := 0.0
	for i := range g.mean {
		diff := g.mean[i] - other.mean[i]
		kl += math.Log(other.std[i]/g.std[i]) +
			(g.std[i]*g.std[i]+diff*diff)/(2*other.std[i]*other.std[i]) -
			0.5
	}
	return kl
}

// Params returns the parameters [μ, σ] of the distribution
func (g *GaussianDist) Params() []float64 {
	return append(g.Mean(), g.std...)
}

// LogProbGrad returns the gradient of the log density of an action
// with respect to the parameters [μ, σ]
func (g *GaussianDist) LogProbGrad(action []float64) []float64 {
	g.check(action)

	d := len(g.mean)
	grad := make([]float64, 2*d)
	for i := 0; i < d; i++ {
		diff := action[i] - g.mean[i]
		variance := g.std[i] * g.std[i]

		grad[i] = diff / variance
		grad[d+i] = diff*diff/(variance*g.std[i]) - 1/g.std[i]
	}
	return grad
}

// EntropyGrad returns the gradient of the entropy with respect to the
// parameters [μ, σ]
func (g *GaussianDist) EntropyGrad() []float64 {
	d := len(g.mean)
	grad := make([]float64, 2*d)
	for i := 0; i < d; i++ {
		grad[d+i] = 1 / g.std[i]
	}
	return grad
}

// KLGrad returns the gradient of KL(p ‖ g) with respect to the
// parameters [μ, σ] of g
func (g *GaussianDist) KLGrad(p Distribution) []float64 {
	other, ok := p.(*GaussianDist)
	if !ok {
		mismatch("klGrad", g, p)
	}

	d := len(g.mean)
	grad := make([]float64, 2*d)
	for i := 0; i < d; i++ {
		diff := g.mean[i] - other.mean[i]
		variance := g.std[i] * g.std[i]

		grad[i] = diff / variance
		grad[d+i] = 1/g.std[i] - (other.std[i]*other.std[i]+diff*diff)/
			(variance*g.std[i])
	}
	return grad
}

// Copy returns a copy of the distribution
func (g *GaussianDist) Copy() Distribution {
	c, err := NewGaussian(g.mean, g.std, g.src)
	if err != nil {
		panic(fmt.Sprintf("copy: %v", err))
	}
	return c
}
