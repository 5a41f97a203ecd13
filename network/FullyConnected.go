package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// Fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		var err error
		if x, err = G.Mul(x, f.Weights()); err != nil {
			return nil, err
		}
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		var err error
		if x, err = G.BroadcastAdd(x, f.Bias(), nil, []byte{0}); err != nil {
			return nil, err
		}
	}
	if f.Activation() == nil {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// Activation returns the activation function of the layer
func (f *fcLayer) Activation() *Activation {
	return f.act
}

// Bias returns the bias node of the layer, or nil if the layer has no
// bias
func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

// Weights returns the weight node of the layer
func (f *fcLayer) Weights() *G.Node {
	return f.weights
}

// learnables returns the learnable nodes of the layer
func (f *fcLayer) learnables() G.Nodes {
	if f.bias == nil {
		return G.Nodes{f.weights}
	}
	return G.Nodes{f.weights, f.bias}
}

// addfcLayers adds fully connected layers to the graph g. The layer
// i has hiddenSizes[i] units, a bias if biases[i] is true, and the
// activation activations[i]. Weights are initialized with init and
// biases with zeroes.
func addfcLayers(g *G.ExprGraph, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn,
	prefix string) ([]*fcLayer, error) {
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("addfcLayers: invalid number of "+
			"activations \n\twant(%d) \n\thave(%d)", len(hiddenSizes),
			len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("addfcLayers: invalid number of biases "+
			"\n\twant(%d) \n\thave(%d)", len(hiddenSizes), len(biases))
	}

	layers := make([]*fcLayer, len(hiddenSizes))
	in := features
	for i, out := range hiddenSizes {
		if out <= 0 {
			return nil, fmt.Errorf("addfcLayers: layer %v must have a "+
				"positive number of units \n\thave(%v)", i, out)
		}

		weights := G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(fmt.Sprintf("%vL%dW", prefix, i)), G.WithInit(init))

		var bias *G.Node
		if biases[i] {
			bias = G.NewMatrix(g, tensor.Float64, G.WithShape(1, out),
				G.WithName(fmt.Sprintf("%vL%dB", prefix, i)),
				G.WithInit(G.Zeroes()))
		}

		layers[i] = &fcLayer{weights: weights, bias: bias,
			act: activations[i]}
		in = out
	}

	return layers, nil
}
