package solver

import G "gorgonia.org/gorgonia"

// VanillaConfig describes a configuration of stochastic gradient
// descent. Gradients are applied as they are given, since asynchronous
// learners accumulate the gradient of a whole trajectory before
// applying it.
type VanillaConfig struct {
	StepSize float64
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize, clip float64) (*Solver, error) {
	return newSolver(Vanilla, VanillaConfig{StepSize: stepSize, Clip: clip})
}

// Create returns a Gorgonia Vanilla Solver as described by the
// VanillaConfig
func (v VanillaConfig) Create() G.Solver {
	opts := []G.SolverOpt{G.WithLearnRate(v.StepSize)}
	if v.Clip > 0 {
		opts = append(opts, G.WithClip(v.Clip))
	}
	return G.NewVanillaSolver(opts...)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (v VanillaConfig) ValidType(t Type) bool {
	return t == Vanilla
}
