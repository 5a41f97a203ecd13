package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu      activationType = "relu"
	leakyRelu activationType = "leakyrelu"
	identity  activationType = "identity"
	tanh      activationType = "tanh"
	sigmoid   activationType = "sigmoid"
	nil_      activationType = "nil"
)

// LeakyReLUAlpha is the slope of the leaky ReLU activation for negative
// inputs
const LeakyReLUAlpha float64 = 0.01

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// Fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	if a.f == nil {
		return x, nil
	}
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// NewActivation returns the activation with the given name
func NewActivation(name string) (*Activation, error) {
	switch activationType(name) {
	case relu:
		return ReLU(), nil
	case leakyRelu:
		return LeakyReLU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	case sigmoid:
		return Sigmoid(), nil
	case nil_:
		return Nil(), nil
	}
	return nil, fmt.Errorf("newActivation: illegal Activation type %v", name)
}

// GobEncode implements the GobEncoder interface
func (a *Activation) GobEncode() ([]byte, error) {
	return []byte(a.activationType), nil
}

// GobDecode implements the GobDecoder interface
func (a *Activation) GobDecode(encoded []byte) error {
	return a.UnmarshalText(encoded)
}

// MarshalText implements the encoding.TextMarshaler interface so that
// activations can be stored in JSON and YAML configuration files
func (a *Activation) MarshalText() ([]byte, error) {
	return []byte(a.activationType), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (a *Activation) UnmarshalText(text []byte) error {
	decoded, err := NewActivation(string(text))
	if err != nil {
		return fmt.Errorf("unmarshalText: %v", err)
	}
	*a = *decoded
	return nil
}

// Nil returns a nil *Activation
func Nil() *Activation {
	return &Activation{
		activationType: nil_,
		f:              nil,
	}
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a ReLU *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f:              G.Rectify,
	}
}

// LeakyReLU returns a leaky ReLU *Activation with slope LeakyReLUAlpha
func LeakyReLU() *Activation {
	return &Activation{
		activationType: leakyRelu,
		f: func(x *G.Node) (*G.Node, error) {
			return G.LeakyRelu(x, LeakyReLUAlpha)
		},
	}
}

// TanH returns a tanh *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f:              G.Tanh,
	}
}

// Sigmoid returns a sigmoid *Activation
func Sigmoid() *Activation {
	return &Activation{
		activationType: sigmoid,
		f:              G.Sigmoid,
	}
}
