// Package paramserver implements a store of parameters shared between
// asynchronous learners.
//
// Learners compute gradients on their own local copies of a model and
// send them to the ParamServer, which applies them to the shared
// parameters with a Gorgonia solver. After each applied gradient, the
// ParamServer also updates an exponential moving average of the shared
// parameters. Learners then copy the shared (or average) parameters
// back into their local models. The ParamServer only holds its lock
// while applying gradients or copying parameters out, so learners
// compute gradients concurrently and updates from different learners
// interleave freely.
package paramserver

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/goacer/network"
	"github.com/samuelfneumann/goacer/solver"
)

var log = logrus.WithField("pkg", "paramserver")

// Param is a shared parameter. Param implements Gorgonia's ValueGrad
// interface so that Gorgonia solvers can update it.
type Param struct {
	Name  string
	value *tensor.Dense
	grad  *tensor.Dense
}

// newParam returns a new Param with the same name, shape, and value as
// the node
func newParam(n *G.Node) (*Param, error) {
	v, ok := n.Value().(*tensor.Dense)
	if !ok || v == nil {
		return nil, fmt.Errorf("newParam: node %v has no value", n.Name())
	}

	return &Param{
		Name:  n.Name(),
		value: v.Clone().(*tensor.Dense),
		grad: tensor.New(
			tensor.WithShape(v.Shape().Clone()...),
			tensor.Of(tensor.Float64),
		),
	}, nil
}

// Value returns the value of the parameter
func (p *Param) Value() G.Value {
	return p.value
}

// Grad returns the gradient of the parameter
func (p *Param) Grad() (G.Value, error) {
	return p.grad, nil
}

// ParamServer stores shared parameters and their moving average
type ParamServer struct {
	mu sync.Mutex

	params  []*Param
	average []*tensor.Dense
	model   []G.ValueGrad

	solver      *solver.Solver
	alpha       float64
	maxGradNorm float64
	updates     int
}

// New returns a new ParamServer with parameters initialized to the
// values of learnables. The solver s is used to apply gradients, and
// the moving average is updated as
//
//	average ← alpha * average + (1 - alpha) * shared
//
// after each applied gradient. If maxGradNorm > 0, gradients are
// clipped so that their global norm is at most maxGradNorm.
func New(learnables G.Nodes, s *solver.Solver, alpha,
	maxGradNorm float64) (*ParamServer, error) {
	if len(learnables) == 0 {
		return nil, fmt.Errorf("new: at least one parameter required")
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("new: alpha must be in [0, 1] \n\thave(%v)",
			alpha)
	}
	if s == nil {
		return nil, fmt.Errorf("new: solver required")
	}

	params := make([]*Param, len(learnables))
	average := make([]*tensor.Dense, len(learnables))
	model := make([]G.ValueGrad, len(learnables))
	for i, n := range learnables {
		var err error
		if params[i], err = newParam(n); err != nil {
			return nil, fmt.Errorf("new: could not create parameter: %v", err)
		}
		average[i] = params[i].value.Clone().(*tensor.Dense)
		model[i] = params[i]
	}

	return &ParamServer{
		params:      params,
		average:     average,
		model:       model,
		solver:      s.Fresh(),
		alpha:       alpha,
		maxGradNorm: maxGradNorm,
	}, nil
}

// Len returns the number of parameters
func (p *ParamServer) Len() int {
	return len(p.params)
}

// Names returns the names of the parameters
func (p *ParamServer) Names() []string {
	names := make([]string, len(p.params))
	for i := range p.params {
		names[i] = p.params[i].Name
	}
	return names
}

// NumUpdates returns the number of gradients applied so far
func (p *ParamServer) NumUpdates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updates
}

// Update applies the gradients to the shared parameters and updates
// the moving average of the parameters. Gradients must be in the same
// order as the learnables the ParamServer was created with. The global
// norm of the gradients before clipping is returned.
func (p *ParamServer) Update(grads []*tensor.Dense) (float64, error) {
	if len(grads) != len(p.params) {
		return 0, fmt.Errorf("update: invalid number of gradients "+
			"\n\twant(%v) \n\thave(%v)", len(p.params), len(grads))
	}
	for i, g := range grads {
		if !g.Shape().Eq(p.params[i].value.Shape()) {
			return 0, &ShapeError{Name: p.params[i].Name,
				Want: p.params[i].value.Shape().Clone(),
				Have: g.Shape().Clone()}
		}
	}

	norm := GlobalNorm(grads)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm, fmt.Errorf("update: gradient is not finite")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	scale := 1.0
	if p.maxGradNorm > 0 && norm > p.maxGradNorm {
		scale = p.maxGradNorm / norm
		log.WithFields(logrus.Fields{
			"norm": norm,
			"max":  p.maxGradNorm,
		}).Debug("clipping gradient")
	}

	for i, g := range grads {
		dst := p.params[i].grad.Data().([]float64)
		floats.ScaleTo(dst, scale, g.Data().([]float64))
	}

	if err := p.solver.Step(p.model); err != nil {
		return norm, fmt.Errorf("update: could not step solver: %v", err)
	}

	for i := range p.params {
		p.params[i].grad.Zero()

		avg := p.average[i].Data().([]float64)
		floats.Scale(p.alpha, avg)
		floats.AddScaled(avg, 1-p.alpha, p.params[i].value.Data().([]float64))
	}
	p.updates++

	return norm, nil
}

// Sync copies the shared parameters into the learnables, which must be
// ordered and shaped as the learnables the ParamServer was created
// with.
func (p *ParamServer) Sync(learnables G.Nodes) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := network.SetValues(learnables, p.values()); err != nil {
		return fmt.Errorf("sync: %v", err)
	}
	return nil
}

// SyncAverage copies the moving average of the shared parameters into
// the learnables
func (p *ParamServer) SyncAverage(learnables G.Nodes) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := network.SetValues(learnables, p.average); err != nil {
		return fmt.Errorf("syncAverage: %v", err)
	}
	return nil
}

// Values returns copies of the shared parameters
func (p *ParamServer) Values() []*tensor.Dense {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.values())
}

// Average returns copies of the moving average of the shared parameters
func (p *ParamServer) Average() []*tensor.Dense {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.average)
}

func (p *ParamServer) values() []*tensor.Dense {
	values := make([]*tensor.Dense, len(p.params))
	for i := range p.params {
		values[i] = p.params[i].value
	}
	return values
}

func clone(values []*tensor.Dense) []*tensor.Dense {
	c := make([]*tensor.Dense, len(values))
	for i := range values {
		c[i] = values[i].Clone().(*tensor.Dense)
	}
	return c
}

// GlobalNorm returns the L2 norm of all gradients taken together
func GlobalNorm(grads []*tensor.Dense) float64 {
	sum := 0.0
	for _, g := range grads {
		n := floats.Norm(g.Data().([]float64), 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}
