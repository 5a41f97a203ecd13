package paramserver

import (
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goacer/solver"
)

// newLearnables returns two learnable nodes with known values
func newLearnables(g *G.ExprGraph) G.Nodes {
	w := G.NewMatrix(g, tensor.Float64, G.WithShape(2, 2), G.WithName("W"),
		G.WithValue(tensor.New(tensor.WithShape(2, 2),
			tensor.WithBacking([]float64{1, 2, 3, 4}))))
	b := G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2), G.WithName("B"),
		G.WithValue(tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float64{-1, 1}))))
	return G.Nodes{w, b}
}

func newGrads(w, b []float64) []*tensor.Dense {
	return []*tensor.Dense{
		tensor.New(tensor.WithShape(2, 2), tensor.WithBacking(w)),
		tensor.New(tensor.WithShape(1, 2), tensor.WithBacking(b)),
	}
}

func newServer(t *testing.T, alpha, maxGradNorm float64) *ParamServer {
	s, err := solver.NewVanilla(0.1, -1)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(newLearnables(G.NewGraph()), s, alpha, maxGradNorm)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUpdate(t *testing.T) {
	p := newServer(t, 0.5, -1)

	norm, err := p.Update(newGrads([]float64{1, 1, 1, 1}, []float64{2, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if want := math.Sqrt(8); math.Abs(norm-want) > 1e-12 {
		t.Errorf("incorrect gradient norm \n\twant(%v) \n\thave(%v)", want,
			norm)
	}

	values := p.Values()
	want := []float64{0.9, 1.9, 2.9, 3.9}
	if !floats.EqualApprox(want, values[0].Data().([]float64), 1e-12) {
		t.Errorf("incorrect parameters after update \n\twant(%v) "+
			"\n\thave(%v)", want, values[0].Data())
	}

	// average = 0.5 * initial + 0.5 * updated
	average := p.Average()
	want = []float64{-1.1, 1}
	if !floats.EqualApprox(want, average[1].Data().([]float64), 1e-12) {
		t.Errorf("incorrect average after update \n\twant(%v) "+
			"\n\thave(%v)", want, average[1].Data())
	}

	if p.NumUpdates() != 1 {
		t.Errorf("incorrect number of updates \n\twant(1) \n\thave(%v)",
			p.NumUpdates())
	}
}

func TestUpdateClip(t *testing.T) {
	p := newServer(t, 0.99, 1.0)

	if _, err := p.Update(newGrads([]float64{3, 0, 0, 0},
		[]float64{0, 4})); err != nil {
		t.Fatal(err)
	}

	// Gradient of norm 5 is clipped to norm 1
	values := p.Values()
	want := []float64{1 - 0.1*0.6, 2, 3, 4}
	if !floats.EqualApprox(want, values[0].Data().([]float64), 1e-12) {
		t.Errorf("incorrect clipped update \n\twant(%v) \n\thave(%v)", want,
			values[0].Data())
	}
}

func TestUpdateInvalid(t *testing.T) {
	p := newServer(t, 0.99, -1)

	grads := []*tensor.Dense{
		tensor.New(tensor.WithShape(2, 1),
			tensor.WithBacking([]float64{1, 1})),
		tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float64{1, 1})),
	}
	if _, err := p.Update(grads); !IsShapeError(err) {
		t.Errorf("invalid gradient shape should return a ShapeError: "+
			"have(%v)", err)
	}

	nan := newGrads([]float64{math.NaN(), 0, 0, 0}, []float64{0, 0})
	if _, err := p.Update(nan); err == nil {
		t.Errorf("non-finite gradients should be rejected")
	}
	if p.NumUpdates() != 0 {
		t.Errorf("rejected gradients should not be applied")
	}
}

func TestSync(t *testing.T) {
	p := newServer(t, 0.0, -1)
	if _, err := p.Update(newGrads([]float64{1, 0, 0, 0},
		[]float64{0, 0})); err != nil {
		t.Fatal(err)
	}

	local := newLearnables(G.NewGraph())
	if err := p.Sync(local); err != nil {
		t.Fatal(err)
	}
	if have := local[0].Value().Data().([]float64)[0]; math.Abs(have-0.9) >
		1e-12 {
		t.Errorf("incorrect synced value \n\twant(0.9) \n\thave(%v)", have)
	}

	avg := newLearnables(G.NewGraph())
	if err := p.SyncAverage(avg); err != nil {
		t.Fatal(err)
	}
	if have := avg[0].Value().Data().([]float64)[0]; math.Abs(have-0.9) >
		1e-12 {
		t.Errorf("incorrect synced average \n\twant(0.9) \n\thave(%v)", have)
	}
}

func TestConcurrentUpdate(t *testing.T) {
	p := newServer(t, 0.99, -1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := newLearnables(G.NewGraph())
			for j := 0; j < 10; j++ {
				grads := newGrads([]float64{0.1, 0.1, 0.1, 0.1},
					[]float64{0.1, 0.1})
				if _, err := p.Update(grads); err != nil {
					t.Error(err)
				}
				if err := p.Sync(local); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if p.NumUpdates() != 80 {
		t.Errorf("incorrect number of updates \n\twant(80) \n\thave(%v)",
			p.NumUpdates())
	}
	want := 1 - 80*0.1*0.1
	if have := p.Values()[0].Data().([]float64)[0]; math.Abs(want-have) >
		1e-10 {
		t.Errorf("incorrect value after concurrent updates \n\twant(%v) "+
			"\n\thave(%v)", want, have)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	p := newServer(t, 0.5, -1)
	if _, err := p.Update(newGrads([]float64{1, 2, 3, 4},
		[]float64{5, 6})); err != nil {
		t.Fatal(err)
	}
	if err := p.Save(dir); err != nil {
		t.Fatal(err)
	}

	loaded := newServer(t, 0.5, -1)
	if err := loaded.Load(dir); err != nil {
		t.Fatal(err)
	}

	for i := range p.Values() {
		want := p.Values()[i].Data().([]float64)
		have := loaded.Values()[i].Data().([]float64)
		if !floats.Equal(want, have) {
			t.Errorf("incorrect loaded parameters \n\twant(%v) \n\thave(%v)",
				want, have)
		}

		want = p.Average()[i].Data().([]float64)
		have = loaded.Average()[i].Data().([]float64)
		if !floats.Equal(want, have) {
			t.Errorf("incorrect loaded average \n\twant(%v) \n\thave(%v)",
				want, have)
		}
	}
}

func TestLoadMismatch(t *testing.T) {
	dir := t.TempDir()

	g := G.NewGraph()
	other := G.Nodes{
		G.NewMatrix(g, tensor.Float64, G.WithShape(3, 2), G.WithName("W"),
			G.WithInit(G.Zeroes())),
		G.NewMatrix(g, tensor.Float64, G.WithShape(1, 2), G.WithName("B"),
			G.WithInit(G.Zeroes())),
	}
	s, _ := solver.NewVanilla(0.1, -1)
	saved, err := New(other, s, 0.5, -1)
	if err != nil {
		t.Fatal(err)
	}
	if err := saved.Save(dir); err != nil {
		t.Fatal(err)
	}

	p := newServer(t, 0.5, -1)
	before := p.Values()[0].Data().([]float64)
	err = p.Load(dir)
	if !IsShapeError(err) {
		t.Errorf("loading mismatched shapes should return a ShapeError: "+
			"have(%v)", err)
	}
	if !floats.Equal(before, p.Values()[0].Data().([]float64)) {
		t.Errorf("failed load should leave parameters unchanged")
	}

	if err := p.Load(t.TempDir()); err == nil {
		t.Errorf("loading from an empty directory should fail")
	}
}
