package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an acion, an observation, or a discount
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
)

// Cardinality determines the cardinality of a number (discrete or continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, or discount in an
// environment.
//
// Discrete action specs are one-dimensional: the single action is an
// integer enumerated from LowerBound to UpperBound.
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if shape.Len() != lowerBound.Len() {
		panic(fmt.Sprintf("shape length %v must match lower bounds length %v",
			shape.Len(), lowerBound.Len()))
	}
	if shape.Len() != upperBound.Len() {
		panic(fmt.Sprintf("shape length %v must match uuper bounds length %v",
			shape.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// Bounds returns the bounds of each dimension described by the Spec
func (s Spec) Bounds() []r1.Interval {
	bounds := make([]r1.Interval, s.LowerBound.Len())
	for i := range bounds {
		bounds[i] = r1.Interval{
			Min: s.LowerBound.AtVec(i),
			Max: s.UpperBound.AtVec(i),
		}
	}
	return bounds
}

// Dims returns the number of dimensions described by the Spec
func (s Spec) Dims() int {
	return s.Shape.Len()
}

// NumActions returns the number of discrete actions described by a
// discrete action Spec
func (s Spec) NumActions() (int, error) {
	if s.Cardinality != Discrete || s.Type != Action {
		return 0, fmt.Errorf("numActions: spec does not describe discrete " +
			"actions")
	}
	if s.LowerBound.Len() != 1 {
		return 0, fmt.Errorf("numActions: discrete actions must be " +
			"1-dimensional")
	}
	if s.LowerBound.AtVec(0) != 0.0 {
		return 0, fmt.Errorf("numActions: discrete actions must be " +
			"enumerated starting from 0")
	}
	return int(s.UpperBound.AtVec(0)) + 1, nil
}
