package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// TreeMLP implements a multi-layered perceptron with a base root
// network and multiple leaf networks that use the output of the root
// network as their own inputs. A diagram of a tree MLP:
//
//	                  ╭─→ Leaf Network 1       ─→ Output
//	                  ├─→ Leaf Network 2       ─→ Output
//	Input ─→ Root Net ─┼─→ ...                  ─→  ...
//	                  ├─→ Leaf Network (N - 1) ─→ Output
//	                  ╰─→ Leaf Network N       ─→ Output
//
// Gaussian policies use a TreeMLP with one leaf predicting the mean and
// another predicting the log standard deviation.
type TreeMLP struct {
	g            *G.ExprGraph
	rootLayers   []*fcLayer
	leafNetworks []*MLP
	input        *G.Node
	rootOutput   *G.Node

	learnables G.Nodes
	prediction []*G.Node
}

// validateTreeMLP validates the arguments of NewTreeMLP() to ensure
// they are legal.
func validateTreeMLP(leafOutputs []int, rootHiddenSizes []int,
	rootBiases []bool, rootActivations []*Activation,
	leafHiddenSizes [][]int, leafBiases [][]bool,
	leafActivations [][]*Activation) error {
	if len(rootHiddenSizes) == 0 {
		return fmt.Errorf("root network must have at least one hidden layer")
	}
	if len(rootHiddenSizes) != len(rootActivations) {
		return fmt.Errorf("invalid number of root activations"+
			"\n\twant(%d)\n\thave(%d)", len(rootHiddenSizes),
			len(rootActivations))
	}
	if len(rootHiddenSizes) != len(rootBiases) {
		return fmt.Errorf("invalid number of root biases"+
			"\n\twant(%d)\n\thave(%d)", len(rootHiddenSizes), len(rootBiases))
	}

	if len(leafOutputs) == 0 {
		return fmt.Errorf("there must be at least one leaf network specified")
	}
	if len(leafOutputs) != len(leafHiddenSizes) {
		return fmt.Errorf("invalid number of leaf network architectures "+
			"\n\twant(%v) \n\thave(%v)", len(leafOutputs),
			len(leafHiddenSizes))
	}
	if len(leafHiddenSizes) != len(leafActivations) {
		return fmt.Errorf("invalid number of leaf network activations "+
			"\n\twant(%v) \n\thave(%v)", len(leafHiddenSizes),
			len(leafActivations))
	}
	if len(leafHiddenSizes) != len(leafBiases) {
		return fmt.Errorf("invalid number of leaf network biases "+
			"\n\twant(%v) \n\thave(%v)", len(leafHiddenSizes), len(leafBiases))
	}

	for i, outputs := range leafOutputs {
		if outputs <= 0 {
			return fmt.Errorf("leaf network %v must have a positive number "+
				"of outputs", i)
		}
	}
	return nil
}

// NewTreeMLP returns a new TreeMLP built on top of the input node.
//
// The root network has number of layers equal to len(rootHiddenSizes).
// For index i, rootHiddenSizes[i] determines the number of hidden
// units in that layer, rootBiases[i] determines if a bias unit is
// added to the hidden layer, and rootActivations[i] determines the
// activation function to apply to that hidden layer.
//
// The number of leaf networks is defined by len(leafOutputs). Leaf
// network i predicts leafOutputs[i] values. For indices i and j,
// leafHiddenSizes[i][j], leafBiases[i][j], and leafActivations[i][j]
// determine the number of hidden units of layer j in leaf network i,
// whether a bias is added to layer j of leaf network i, and the
// activation of layer j of leaf network i respectively. For all leaf
// networks, a final linear layer with a bias and no activation is
// added. To create leaf networks with only this linear layer, set
// leafHiddenSizes = [][]int{{}, {}, ..., {}} (similarly for leafBiases
// and leafActivations).
func NewTreeMLP(input *G.Node, rootHiddenSizes []int, rootBiases []bool,
	rootActivations []*Activation, leafOutputs []int,
	leafHiddenSizes [][]int, leafBiases [][]bool,
	leafActivations [][]*Activation, init G.InitWFn,
	prefix string) (*TreeMLP, error) {
	err := validateTreeMLP(leafOutputs, rootHiddenSizes, rootBiases,
		rootActivations, leafHiddenSizes, leafBiases, leafActivations)
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: %v", err)
	}
	if !input.IsMatrix() {
		return nil, fmt.Errorf("newTreeMLP: input must be a matrix")
	}

	rootLayers, err := addfcLayers(input.Graph(), input.Shape()[1],
		rootHiddenSizes, rootBiases, rootActivations, init, prefix+"Root")
	if err != nil {
		return nil, fmt.Errorf("newTreeMLP: could not construct root "+
			"network: %v", err)
	}

	rootOutput := input
	for _, layer := range rootLayers {
		if rootOutput, err = layer.fwd(rootOutput); err != nil {
			return nil, fmt.Errorf("newTreeMLP: could not compute root "+
				"forward pass: %v", err)
		}
	}

	leafNetworks := make([]*MLP, len(leafOutputs))
	prediction := make([]*G.Node, len(leafOutputs))
	for i := range leafOutputs {
		leafNetworks[i], err = NewMLP(rootOutput, leafOutputs[i],
			leafHiddenSizes[i], leafBiases[i], leafActivations[i], init,
			fmt.Sprintf("%vLeaf%d", prefix, i))
		if err != nil {
			return nil, fmt.Errorf("newTreeMLP: could not construct leaf "+
				"network %v: %v", i, err)
		}
		prediction[i] = leafNetworks[i].Prediction()
	}

	return &TreeMLP{
		g:            input.Graph(),
		rootLayers:   rootLayers,
		leafNetworks: leafNetworks,
		input:        input,
		rootOutput:   rootOutput,
		prediction:   prediction,
	}, nil
}

// Graph returns the computational graph of the network
func (t *TreeMLP) Graph() *G.ExprGraph {
	return t.g
}

// OutputLayers returns the number of output layers in the network.
// There is one output layer per leaf network.
func (t *TreeMLP) OutputLayers() int {
	return len(t.prediction)
}

// Prediction returns the output node of each leaf network
func (t *TreeMLP) Prediction() []*G.Node {
	return t.prediction
}

// Learnables returns the learnable nodes of the root network followed
// by those of each leaf network
func (t *TreeMLP) Learnables() G.Nodes {
	if t.learnables == nil {
		for _, layer := range t.rootLayers {
			t.learnables = append(t.learnables, layer.learnables()...)
		}
		for _, leaf := range t.leafNetworks {
			t.learnables = append(t.learnables, leaf.Learnables()...)
		}
	}
	return t.learnables
}

// Model returns the learnable nodes with their gradients
func (t *TreeMLP) Model() []G.ValueGrad {
	return model(t.Learnables())
}
