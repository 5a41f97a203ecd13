// Package network implements the neural network building blocks used
// by agents: fully connected multi-layered perceptrons, tree
// multi-layered perceptrons with multiple output heads, and recurrent
// layers. Each network is built on top of a given input node so that
// networks can be composed in a single computational graph.
package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a neural network in a Gorgonia computational graph
type NeuralNet interface {
	Graph() *G.ExprGraph

	// Learnables returns the learnable nodes of the network in a
	// deterministic order
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad
}

// model converts learnables to the []G.ValueGrad used by solvers
func model(learnables G.Nodes) []G.ValueGrad {
	m := make([]G.ValueGrad, len(learnables))
	for i := range learnables {
		m[i] = learnables[i]
	}
	return m
}

// SetValues copies the values into the learnable nodes. The copy is
// performed in place so that compiled VMs using the nodes see the new
// values.
func SetValues(learnables G.Nodes, values []*tensor.Dense) error {
	if len(learnables) != len(values) {
		return fmt.Errorf("setValues: invalid number of values "+
			"\n\twant(%v) \n\thave(%v)", len(learnables), len(values))
	}

	for i, l := range learnables {
		if !l.Shape().Eq(values[i].Shape()) {
			return fmt.Errorf("setValues: invalid shape for node %v "+
				"\n\twant(%v) \n\thave(%v)", l.Name(), l.Shape(),
				values[i].Shape())
		}

		dst, ok := l.Value().(*tensor.Dense)
		if !ok || dst == nil {
			// Node not yet initialized
			if err := G.Let(l, values[i].Clone().(*tensor.Dense)); err != nil {
				return fmt.Errorf("setValues: could not set node %v: %v",
					l.Name(), err)
			}
			continue
		}
		copy(dst.Data().([]float64), values[i].Data().([]float64))
	}
	return nil
}

// Grads returns the gradients of the learnables. Gradients are only
// available after running a VM which computes them.
func Grads(learnables G.Nodes) ([]*tensor.Dense, error) {
	grads := make([]*tensor.Dense, len(learnables))
	for i, l := range learnables {
		g, err := l.Grad()
		if err != nil {
			return nil, fmt.Errorf("grads: could not get gradient of "+
				"node %v: %v", l.Name(), err)
		}
		grads[i] = g.(*tensor.Dense)
	}
	return grads, nil
}
