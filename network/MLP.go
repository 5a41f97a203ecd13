package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// MLP implements a multi-layered perceptron built on top of an input
// node. The input node is a matrix of shape (batch, features).
type MLP struct {
	g          *G.ExprGraph
	layers     []*fcLayer
	input      *G.Node
	numOutputs int
	numInputs  int
	batchSize  int

	learnables G.Nodes
	prediction *G.Node
	predVal    G.Value
}

// NewMLP creates and returns a new multi-layered perceptron which uses
// input as its input node.
//
// The MLP has number of layers equal to len(hiddenSizes) + 1. A final
// layer is always added such that given any input, the output will
// have outputs columns. The final layer also contains a bias unit, and
// bias units for each additional hidden layer is specified by biases.
// The final layer will contain no activations, and the activations of
// additional hidden layers is specified by activations. The parameter
// init determines the weight initialization scheme. The prefix is
// prepended to the names of all learnables.
//
// The function works such that for index i, hiddenSizes[i] is the
// number of nodes in hidden layer i; biases[i] is true if the
// hidden layer will contain a bias unit and false otherwise; and
// activations[i] is the activation function for hidden layer i.
func NewMLP(input *G.Node, outputs int, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, prefix string) (*MLP,
	error) {
	return newMLP(input, outputs, hiddenSizes, biases, activations, init,
		prefix, true)
}

func newMLP(input *G.Node, outputs int, hiddenSizes []int, biases []bool,
	activations []*Activation, init G.InitWFn, prefix string,
	addFinalLayer bool) (*MLP, error) {
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newMLP: input must be a matrix")
	}
	if len(hiddenSizes) != len(activations) {
		return nil, fmt.Errorf("newMLP: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		return nil, fmt.Errorf("newMLP: invalid number of biases"+
			"\n\twant(%d)\n\thave(%d)", len(hiddenSizes), len(biases))
	}

	batch := input.Shape()[0]
	features := input.Shape()[1]

	// Copy so that appending the final layer does not modify the
	// caller's slices
	sizes := append([]int{}, hiddenSizes...)
	bs := append([]bool{}, biases...)
	acts := append([]*Activation{}, activations...)

	// If required, add a final linear layer with no activation to ensure
	// outputs heads are predicted by the network
	if addFinalLayer {
		sizes = append(sizes, outputs)
		bs = append(bs, true)
		acts = append(acts, Identity())
	} else if len(sizes) == 0 || outputs != sizes[len(sizes)-1] {
		return nil, fmt.Errorf("newMLP: claimed output is of size %v but "+
			"the final network layer has a different size", outputs)
	}

	layers, err := addfcLayers(input.Graph(), features, sizes, bs, acts,
		init, prefix)
	if err != nil {
		return nil, fmt.Errorf("newMLP: %v", err)
	}

	net := &MLP{
		g:          input.Graph(),
		layers:     layers,
		input:      input,
		numOutputs: outputs,
		numInputs:  features,
		batchSize:  batch,
	}

	if _, err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newMLP: could not compute forward pass: %v",
			err)
	}

	return net, nil
}

// fwd adds the forward pass of the MLP to the graph
func (m *MLP) fwd(input *G.Node) (*G.Node, error) {
	pred := input
	for i, layer := range m.layers {
		var err error
		if pred, err = layer.fwd(pred); err != nil {
			return nil, fmt.Errorf("fwd: layer %v: %v", i, err)
		}
	}

	m.prediction = pred
	G.Read(m.prediction, &m.predVal)

	return pred, nil
}

// Graph returns the computational graph of the MLP
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// Input returns the input node of the MLP
func (m *MLP) Input() *G.Node {
	return m.input
}

// BatchSize returns the batch size of inputs to the MLP
func (m *MLP) BatchSize() int {
	return m.batchSize
}

// Features returns the number of input features
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs of the MLP
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// Prediction returns the node of the computational graph that stores
// the output of the MLP
func (m *MLP) Prediction() *G.Node {
	return m.prediction
}

// Output returns the output of the MLP after a VM has been run
func (m *MLP) Output() G.Value {
	return m.predVal
}

// Learnables returns the learnable nodes of the MLP
func (m *MLP) Learnables() G.Nodes {
	if m.learnables == nil {
		for _, layer := range m.layers {
			m.learnables = append(m.learnables, layer.learnables()...)
		}
	}
	return m.learnables
}

// Model returns the learnable nodes with their gradients
func (m *MLP) Model() []G.ValueGrad {
	return model(m.Learnables())
}
