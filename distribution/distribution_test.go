package distribution

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	eps = 1e-6
	tol = 1e-4
)

// build constructs a distribution of the same type as d with params
func build(t *testing.T, d Distribution, params []float64) Distribution {
	switch d.(type) {
	case *SoftmaxDist:
		return NewSoftmax(params, nil)

	case *GaussianDist:
		n := len(params) / 2
		g, err := NewGaussian(params[:n], params[n:], nil)
		if err != nil {
			t.Fatal(err)
		}
		return g
	}

	t.Fatalf("unknown distribution type %T", d)
	return nil
}

// numericalGrad computes the gradient of f with respect to the
// parameters of d using central differences
func numericalGrad(t *testing.T, d Distribution,
	f func(Distribution) float64) []float64 {
	params := d.Params()
	grad := make([]float64, len(params))

	for i := range params {
		plus := make([]float64, len(params))
		copy(plus, params)
		plus[i] += eps

		minus := make([]float64, len(params))
		copy(minus, params)
		minus[i] -= eps

		grad[i] = (f(build(t, d, plus)) - f(build(t, d, minus))) / (2 * eps)
	}
	return grad
}

func distributions(t *testing.T) []Distribution {
	g1, err := NewGaussian([]float64{0.3}, []float64{0.7}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := NewGaussian([]float64{-0.5, 1.2}, []float64{1.3, 0.4}, nil)
	if err != nil {
		t.Fatal(err)
	}

	return []Distribution{
		NewSoftmax([]float64{0.1, -0.4}, nil),
		NewSoftmax([]float64{1.0, 0.2, -2.0}, nil),
		g1,
		g2,
	}
}

func TestLogProbGrad(t *testing.T) {
	for _, d := range distributions(t) {
		for i := 0; i < 3; i++ {
			var action []float64
			if s, ok := d.(*SoftmaxDist); ok {
				if i >= s.NumActions() {
					continue
				}
				action = []float64{float64(i)}
			} else {
				action = d.Sample()
			}

			want := numericalGrad(t, d, func(d Distribution) float64 {
				return d.LogProb(action)
			})
			have := d.LogProbGrad(action)
			if !floats.EqualApprox(want, have, tol) {
				t.Errorf("%T: incorrect log prob gradient \n\twant(%v) "+
					"\n\thave(%v)", d, want, have)
			}
		}
	}
}

func TestEntropyGrad(t *testing.T) {
	for _, d := range distributions(t) {
		want := numericalGrad(t, d, func(d Distribution) float64 {
			return d.Entropy()
		})
		have := d.EntropyGrad()
		if !floats.EqualApprox(want, have, tol) {
			t.Errorf("%T: incorrect entropy gradient \n\twant(%v) "+
				"\n\thave(%v)", d, want, have)
		}
	}
}

func TestKLGrad(t *testing.T) {
	for _, d := range distributions(t) {
		params := d.Params()
		for i := range params {
			params[i] += 0.3 * float64(i+1)
		}
		if g, ok := d.(*GaussianDist); ok {
			// Keep standard deviations positive
			for i := g.Dims(); i < len(params); i++ {
				params[i] = math.Abs(params[i]) + 0.1
			}
		}
		p := build(t, d, params)

		want := numericalGrad(t, d, func(d Distribution) float64 {
			return p.KL(d)
		})
		have := d.KLGrad(p)
		if !floats.EqualApprox(want, have, tol) {
			t.Errorf("%T: incorrect KL gradient \n\twant(%v) "+
				"\n\thave(%v)", d, want, have)
		}
	}
}

func TestKL(t *testing.T) {
	for _, d := range distributions(t) {
		if kl := d.KL(d.Copy()); math.Abs(kl) > 1e-10 {
			t.Errorf("%T: KL to itself should be 0 \n\thave(%v)", d, kl)
		}
	}

	// Closed form for a univariate Gaussian
	p, _ := NewGaussian([]float64{0}, []float64{1}, nil)
	q, _ := NewGaussian([]float64{1}, []float64{2}, nil)
	want := math.Log(2) + (1.0+1.0)/8.0 - 0.5
	if have := p.KL(q); math.Abs(have-want) > 1e-10 {
		t.Errorf("incorrect Gaussian KL \n\twant(%v) \n\thave(%v)", want, have)
	}

	// Direct summation for a softmax
	s := NewSoftmax([]float64{0, 1}, nil)
	r := NewSoftmax([]float64{1, 0}, nil)
	sp, rp := s.AllProbs(), r.AllProbs()
	want = sp[0]*math.Log(sp[0]/rp[0]) + sp[1]*math.Log(sp[1]/rp[1])
	if have := s.KL(r); math.Abs(have-want) > 1e-10 {
		t.Errorf("incorrect softmax KL \n\twant(%v) \n\thave(%v)", want, have)
	}
}

func TestEntropy(t *testing.T) {
	s := NewSoftmax([]float64{0.5, 0.5, 0.5, 0.5}, nil)
	if want, have := math.Log(4), s.Entropy(); math.Abs(want-have) > 1e-10 {
		t.Errorf("incorrect softmax entropy \n\twant(%v) \n\thave(%v)", want,
			have)
	}

	g, _ := NewGaussian([]float64{3}, []float64{0.5}, nil)
	want := 0.5 * math.Log(2*math.Pi*math.E*0.25)
	if have := g.Entropy(); math.Abs(want-have) > 1e-10 {
		t.Errorf("incorrect Gaussian entropy \n\twant(%v) \n\thave(%v)", want,
			have)
	}
}

func TestSample(t *testing.T) {
	src := rand.NewSource(1)
	const n = 20000

	s := NewSoftmax([]float64{0, math.Log(3)}, src)
	count := 0.0
	for i := 0; i < n; i++ {
		count += s.Sample()[0]
	}
	if freq := count / n; math.Abs(freq-0.75) > 0.02 {
		t.Errorf("incorrect sample frequency \n\twant(0.75) \n\thave(%v)",
			freq)
	}

	g, _ := NewGaussian([]float64{1.5}, []float64{0.5}, src)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = g.Sample()[0]
	}
	mean, std := stat.MeanStdDev(samples, nil)
	if math.Abs(mean-1.5) > 0.02 || math.Abs(std-0.5) > 0.02 {
		t.Errorf("incorrect sample statistics \n\twant(1.5, 0.5) "+
			"\n\thave(%v, %v)", mean, std)
	}
}

func TestMostProbable(t *testing.T) {
	s := NewSoftmax([]float64{0.1, 2.0, -1.0}, nil)
	if a := s.MostProbable(); a[0] != 1 {
		t.Errorf("incorrect most probable action \n\twant(1) \n\thave(%v)",
			a[0])
	}

	g, _ := NewGaussian([]float64{0.2, -0.1}, []float64{1, 1}, nil)
	if a := g.MostProbable(); !floats.Equal(a, []float64{0.2, -0.1}) {
		t.Errorf("most probable action should be the mean: have(%v)", a)
	}
}

func TestNewGaussianErrors(t *testing.T) {
	if _, err := NewGaussian([]float64{0}, []float64{0}, nil); err == nil {
		t.Errorf("zero standard deviation should be rejected")
	}
	if _, err := NewGaussian([]float64{0}, []float64{1, 1}, nil); err == nil {
		t.Errorf("mismatched dimensions should be rejected")
	}
}
