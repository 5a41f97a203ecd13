package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Recurrent implements an Elman recurrent layer unrolled over the rows
// of its input:
//
//	h_t = tanh(x_t Wx + h_{t-1} Wh + b)
//
// Row t of the input is the input at time t, and row t of the
// prediction is the hidden state h_t. The initial hidden state h_{-1}
// is an input node of shape (1, hidden) which is set with SetHidden.
type Recurrent struct {
	g       *G.ExprGraph
	input   *G.Node
	hidden0 *G.Node
	size    int

	wx, wh, b *G.Node

	hidden     []*G.Node
	prediction *G.Node
	predVal    G.Value
}

// NewRecurrent returns a new recurrent layer with hiddenSize units
// built on top of input, which must be a matrix of shape
// (timesteps, features).
func NewRecurrent(input *G.Node, hiddenSize int, init G.InitWFn,
	prefix string) (*Recurrent, error) {
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newRecurrent: input must be a matrix")
	}
	if hiddenSize <= 0 {
		return nil, fmt.Errorf("newRecurrent: hidden size must be "+
			"positive \n\thave(%v)", hiddenSize)
	}

	g := input.Graph()
	rows, features := input.Shape()[0], input.Shape()[1]

	r := &Recurrent{
		g:     g,
		input: input,
		size:  hiddenSize,
		hidden0: G.NewMatrix(g, tensor.Float64, G.WithShape(1, hiddenSize),
			G.WithName(prefix+"Hidden0"), G.WithInit(G.Zeroes())),
		wx: G.NewMatrix(g, tensor.Float64,
			G.WithShape(features, hiddenSize), G.WithName(prefix+"Wx"),
			G.WithInit(init)),
		wh: G.NewMatrix(g, tensor.Float64,
			G.WithShape(hiddenSize, hiddenSize), G.WithName(prefix+"Wh"),
			G.WithInit(init)),
		b: G.NewMatrix(g, tensor.Float64, G.WithShape(1, hiddenSize),
			G.WithName(prefix+"B"), G.WithInit(G.Zeroes())),
	}

	if err := r.fwd(rows); err != nil {
		return nil, fmt.Errorf("newRecurrent: could not compute forward "+
			"pass: %v", err)
	}
	return r, nil
}

// fwd unrolls the layer over rows timesteps
func (r *Recurrent) fwd(rows int) error {
	xw, err := G.Mul(r.input, r.wx)
	if err != nil {
		return err
	}

	h := r.hidden0
	r.hidden = make([]*G.Node, rows)
	for t := 0; t < rows; t++ {
		// Select row t of xw with a one-hot row vector
		xt := xw
		if rows > 1 {
			selector := make([]float64, rows)
			selector[t] = 1.0
			oneHot := G.NewConstant(tensor.New(
				tensor.WithShape(1, rows),
				tensor.WithBacking(selector),
			), G.WithName(fmt.Sprintf("%vSelect%d", r.wx.Name(), t)))

			if xt, err = G.Mul(oneHot, xw); err != nil {
				return err
			}
		}

		hw, err := G.Mul(h, r.wh)
		if err != nil {
			return err
		}
		pre, err := G.Add(xt, hw)
		if err != nil {
			return err
		}
		if pre, err = G.Add(pre, r.b); err != nil {
			return err
		}
		if h, err = G.Tanh(pre); err != nil {
			return err
		}
		r.hidden[t] = h
	}

	if rows == 1 {
		r.prediction = r.hidden[0]
	} else if r.prediction, err = G.Concat(0, r.hidden...); err != nil {
		return err
	}
	G.Read(r.prediction, &r.predVal)

	return nil
}

// SetHidden sets the initial hidden state. A nil hidden state sets the
// initial hidden state to zeroes.
func (r *Recurrent) SetHidden(hidden []float64) error {
	h := make([]float64, r.size)
	if hidden != nil {
		if len(hidden) != r.size {
			return fmt.Errorf("setHidden: invalid hidden state size "+
				"\n\twant(%v) \n\thave(%v)", r.size, len(hidden))
		}
		copy(h, hidden)
	}

	return G.Let(r.hidden0, tensor.New(
		tensor.WithShape(1, r.size),
		tensor.WithBacking(h),
	))
}

// HiddenSize returns the number of hidden units
func (r *Recurrent) HiddenSize() int {
	return r.size
}

// Hidden returns the hidden state at each timestep after a VM has been
// run. Hidden state t is the state after consuming input row t.
func (r *Recurrent) Hidden() [][]float64 {
	data := r.predVal.Data().([]float64)
	hidden := make([][]float64, len(r.hidden))
	for t := range hidden {
		hidden[t] = make([]float64, r.size)
		copy(hidden[t], data[t*r.size:(t+1)*r.size])
	}
	return hidden
}

// Graph returns the computational graph of the layer
func (r *Recurrent) Graph() *G.ExprGraph {
	return r.g
}

// Prediction returns the node holding the hidden states of all
// timesteps, with shape (timesteps, hidden)
func (r *Recurrent) Prediction() *G.Node {
	return r.prediction
}

// Learnables returns the learnable nodes of the layer. The initial
// hidden state is an input and not a learnable.
func (r *Recurrent) Learnables() G.Nodes {
	return G.Nodes{r.wx, r.wh, r.b}
}

// Model returns the learnable nodes with their gradients
func (r *Recurrent) Model() []G.ValueGrad {
	return model(r.Learnables())
}
