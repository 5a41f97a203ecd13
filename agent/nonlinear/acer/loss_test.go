package acer

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/goacer/actionvalue"
	"github.com/samuelfneumann/goacer/distribution"
)

const nSamples = 1000

// varianceRetries is the number of seeds over which the variance of
// truncated importance sampling with bias correction is compared to
// plain importance sampling. Sample variances of importance sampling
// with continuous policies are heavy tailed, so a single seed may fail.
const varianceRetries = 3

// biasCorrectionCase describes a target policy, behaviour policy, and
// action values for which the policy gradient estimators are compared
type biasCorrectionCase struct {
	name        string
	pi          distribution.Distribution
	mu          distribution.Distribution
	actionValue actionvalue.ActionValue
}

func gaussian(t *testing.T, mean, std []float64,
	src rand.Source) *distribution.GaussianDist {
	g, err := distribution.NewGaussian(mean, std, src)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func linear(w []float64) actionvalue.ActionValue {
	return actionvalue.NewSingle(func(a []float64) float64 {
		return floats.Dot(w, a)
	}, 0)
}

// biasCorrectionCases returns the test cases with samplers seeded
// from seed
func biasCorrectionCases(t *testing.T, seed uint64) []biasCorrectionCase {
	src := func(i uint64) rand.Source {
		return rand.NewSource(seed*10 + i)
	}

	return []biasCorrectionCase{
		{
			name: "Softmax2",
			pi: distribution.NewSoftmax([]float64{math.Log(0.7),
				math.Log(0.3)}, src(1)),
			mu: distribution.NewSoftmax([]float64{math.Log(0.2),
				math.Log(0.8)}, src(2)),
			actionValue: actionvalue.NewDiscrete([]float64{1, 0}),
		},
		{
			name: "Softmax3",
			pi: distribution.NewSoftmax([]float64{math.Log(0.7),
				math.Log(0.2), math.Log(0.1)}, src(3)),
			mu: distribution.NewSoftmax([]float64{math.Log(0.2),
				math.Log(0.4), math.Log(0.4)}, src(4)),
			actionValue: actionvalue.NewDiscrete([]float64{1, 0, 0}),
		},
		{
			name:        "Gaussian1",
			pi:          gaussian(t, []float64{0}, []float64{1}, src(5)),
			mu:          gaussian(t, []float64{0}, []float64{0.6}, src(6)),
			actionValue: linear([]float64{1}),
		},
		{
			name: "Gaussian2",
			pi: gaussian(t, []float64{0, 0}, []float64{1, 1},
				src(7)),
			mu: gaussian(t, []float64{0.5, -0.5}, []float64{0.6, 0.6},
				src(8)),
			actionValue: linear([]float64{1, 0.5}),
		},
	}
}

// moments returns the mean and the sum of the variances of each
// component of a set of gradients
func moments(grads [][]float64) ([]float64, float64) {
	mean := make([]float64, len(grads[0]))
	variance := 0.0
	column := make([]float64, len(grads))
	for j := range mean {
		for i := range grads {
			column[i] = grads[i][j]
		}
		m, v := stat.MeanVariance(column, nil)
		mean[j] = m
		variance += v
	}
	return mean, variance
}

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// estimates holds the means and variance sums of the policy gradient
// estimators of a biasCorrectionCase
type estimates struct {
	onMean, offMean []float64
	isMean          []float64
	isVar           float64

	c0Mean  []float64
	c1Mean  []float64
	c1Var   float64
	infMean []float64
	infVar  float64
}

// estimate computes the policy gradient estimators of a test case from
// nSamples actions of the target and behaviour policies
func estimate(test biasCorrectionCase) estimates {
	q := test.actionValue.Evaluate

	piSamples := make([][]float64, nSamples)
	muSamples := make([][]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		piSamples[i] = test.pi.Sample()
		muSamples[i] = test.mu.Sample()
	}

	var onPolicy, offPolicy, is [][]float64
	for i := 0; i < nSamples; i++ {
		a := piSamples[i]
		onPolicy = append(onPolicy, OnPolicyLoss(a, q(a), test.pi).Grad)

		b := muSamples[i]
		off := OnPolicyLoss(b, q(b), test.pi).Grad
		offPolicy = append(offPolicy, off)

		rho := importanceWeight(test.pi, test.mu, b)
		weighted := make([]float64, len(off))
		floats.ScaleTo(weighted, rho, off)
		is = append(is, weighted)
	}

	biasCorrected := func(c float64) [][]float64 {
		grads := make([][]float64, nSamples)
		for i, b := range muSamples {
			grads[i] = PolicyGradientLoss(PolicyGradient{
				Action:              b,
				Advantage:           q(b),
				Pi:                  test.pi,
				Mu:                  test.mu,
				ActionValue:         test.actionValue,
				V:                   0,
				TruncationThreshold: c,
			}).Grad
		}
		return grads
	}

	var e estimates
	e.onMean, _ = moments(onPolicy)
	e.offMean, _ = moments(offPolicy)
	e.isMean, e.isVar = moments(is)
	e.c0Mean, _ = moments(biasCorrected(0))
	e.c1Mean, e.c1Var = moments(biasCorrected(1))
	e.infMean, e.infVar = moments(biasCorrected(math.Inf(1)))
	return e
}

func TestBiasCorrection(t *testing.T) {
	for i, test := range biasCorrectionCases(t, 0) {
		t.Run(test.name, func(t *testing.T) {
			e := estimate(test)
			offBias := distance(e.onMean, e.offMean)

			// c = 0 reduces to sampling from the target policy
			if bias := distance(e.onMean, e.c0Mean); bias > offBias {
				t.Errorf("c = 0 should have lower bias than off-policy "+
					"sampling \n\twant(<= %v) \n\thave(%v)", offBias, bias)
			}

			// c = 1 is truncated importance sampling with bias correction
			if bias := distance(e.onMean, e.c1Mean); bias >= offBias {
				t.Errorf("c = 1 should have lower bias than off-policy "+
					"sampling \n\twant(< %v) \n\thave(%v)", offBias, bias)
			}
			c1Var, isVar := e.c1Var, e.isVar
			for seed := uint64(1); c1Var > isVar && seed < varianceRetries; seed++ {
				retry := estimate(biasCorrectionCases(t, seed)[i])
				c1Var, isVar = retry.c1Var, retry.isVar
			}
			if c1Var > isVar {
				t.Errorf("c = 1 should have lower variance than importance "+
					"sampling \n\twant(<= %v) \n\thave(%v)", isVar, c1Var)
			}

			// c = +Inf is importance sampling without truncation
			for j := range e.infMean {
				if !closeRel(e.infMean[j], e.isMean[j], 1e-3) {
					t.Errorf("c = +Inf should equal importance sampling "+
						"\n\twant(%v) \n\thave(%v)", e.isMean, e.infMean)
					break
				}
			}
			if !closeRel(e.infVar, e.isVar, 1e-3) {
				t.Errorf("c = +Inf should have the variance of importance "+
					"sampling \n\twant(%v) \n\thave(%v)", e.isVar, e.infVar)
			}
		})
	}
}

func closeRel(have, want, rtol float64) bool {
	return math.Abs(have-want) <= rtol*math.Abs(want)+1e-12
}

func TestPolicyGradientLossOnPolicy(t *testing.T) {
	// When μ = π and there is no truncation, the loss reduces to the
	// on-policy loss
	pi := distribution.NewSoftmax([]float64{0.3, -0.2, 1.0}, nil)
	av := actionvalue.NewDiscrete([]float64{0.5, 1, -1})
	action := []float64{2}

	want := OnPolicyLoss(action, 1.5, pi)
	have := PolicyGradientLoss(PolicyGradient{
		Action:              action,
		Advantage:           1.5,
		Pi:                  pi,
		Mu:                  pi.Copy(),
		ActionValue:         av,
		V:                   av.Expectation(pi),
		TruncationThreshold: math.Inf(1),
	})

	if math.Abs(want.Value-have.Value) > 1e-10 {
		t.Errorf("incorrect loss \n\twant(%v) \n\thave(%v)", want.Value,
			have.Value)
	}
	if !floats.EqualApprox(want.Grad, have.Grad, 1e-10) {
		t.Errorf("incorrect gradient \n\twant(%v) \n\thave(%v)", want.Grad,
			have.Grad)
	}
}

func TestPolicyGradientLossZeroProbability(t *testing.T) {
	// The behaviour policy could not have selected action 0
	pi := distribution.NewSoftmax([]float64{0, 0}, nil)
	mu := distribution.NewSoftmax([]float64{math.Inf(-1), 0}, nil)
	av := actionvalue.NewDiscrete([]float64{1, 0})

	for _, c := range []float64{0, 1, 10, math.Inf(1)} {
		loss := PolicyGradientLoss(PolicyGradient{
			Action:              []float64{0},
			Advantage:           1,
			Pi:                  pi,
			Mu:                  mu,
			ActionValue:         av,
			V:                   0.5,
			TruncationThreshold: c,
		})

		if math.IsNaN(loss.Value) || math.IsInf(loss.Value, 0) {
			t.Errorf("c = %v: loss should be finite \n\thave(%v)", c,
				loss.Value)
		}
		for _, g := range loss.Grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				t.Errorf("c = %v: gradient should be finite \n\thave(%v)",
					c, loss.Grad)
				break
			}
		}
	}
}

func TestCorrectionWeight(t *testing.T) {
	tests := []struct {
		pi, mu, c float64
		want      float64
	}{
		{0.5, 0.25, 1, 0.5},
		{0.25, 0.5, 1, 0},
		{0, 0.5, 1, 0},
		{0.5, 0.5, math.Inf(1), 0},
		{0.5, 0, 0, 1},
		{0.5, 0.1, 0, 1},
		{0.5, math.NaN(), 1, 0},
	}

	for _, test := range tests {
		have := correctionWeight(test.pi, test.mu, test.c)
		if have != test.want {
			t.Errorf("correctionWeight(%v, %v, %v) \n\twant(%v) \n\thave(%v)",
				test.pi, test.mu, test.c, test.want, have)
		}
	}
}

func TestTruncate(t *testing.T) {
	if have := truncate(math.Inf(1), math.Inf(1)); have != 0 {
		t.Errorf("infinite weights should be ignored \n\thave(%v)", have)
	}
	if have := truncate(3, 1); have != 1 {
		t.Errorf("incorrect truncation \n\twant(1) \n\thave(%v)", have)
	}
	if have := truncate(0.5, 1); have != 0.5 {
		t.Errorf("incorrect truncation \n\twant(0.5) \n\thave(%v)", have)
	}
}

func TestEntropyLoss(t *testing.T) {
	pi := distribution.NewSoftmax([]float64{0.1, 0.4}, nil)
	loss := EntropyLoss(pi, 0.01)

	if want := -0.01 * pi.Entropy(); math.Abs(loss.Value-want) > 1e-12 {
		t.Errorf("incorrect entropy loss \n\twant(%v) \n\thave(%v)", want,
			loss.Value)
	}

	want := pi.EntropyGrad()
	floats.Scale(-0.01, want)
	if !floats.EqualApprox(want, loss.Grad, 1e-12) {
		t.Errorf("incorrect entropy loss gradient \n\twant(%v) "+
			"\n\thave(%v)", want, loss.Grad)
	}
}
