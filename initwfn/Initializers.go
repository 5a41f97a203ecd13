package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// validateGain returns an error if gain cannot scale weights
func validateGain(gain float64) error {
	if gain <= 0 {
		return fmt.Errorf("gain must be positive \n\thave(%v)", gain)
	}
	return nil
}

// GlorotUConfig configures Glorot uniform initialization, the default
// for ACER networks
type GlorotUConfig struct {
	Gain float64
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	if err := validateGain(gain); err != nil {
		return nil, fmt.Errorf("newGlorotU: %v", err)
	}
	return newInitWFn(GlorotUConfig{Gain: gain})
}

func (g GlorotUConfig) Type() Type        { return GlorotU }
func (g GlorotUConfig) Create() G.InitWFn { return G.GlorotU(g.Gain) }

// GlorotNConfig configures Glorot normal initialization
type GlorotNConfig struct {
	Gain float64
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	if err := validateGain(gain); err != nil {
		return nil, fmt.Errorf("newGlorotN: %v", err)
	}
	return newInitWFn(GlorotNConfig{Gain: gain})
}

func (g GlorotNConfig) Type() Type        { return GlorotN }
func (g GlorotNConfig) Create() G.InitWFn { return G.GlorotN(g.Gain) }

// HeUConfig configures He uniform initialization, suited to networks
// with (leaky) rectified linear activations
type HeUConfig struct {
	Gain float64
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	if err := validateGain(gain); err != nil {
		return nil, fmt.Errorf("newHeU: %v", err)
	}
	return newInitWFn(HeUConfig{Gain: gain})
}

func (h HeUConfig) Type() Type        { return HeU }
func (h HeUConfig) Create() G.InitWFn { return G.HeU(h.Gain) }

// ZeroesConfig initializes all weights to zero
type ZeroesConfig struct{}

// NewZeroes returns a new zero weight initializer
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

func (z ZeroesConfig) Type() Type        { return Zeroes }
func (z ZeroesConfig) Create() G.InitWFn { return G.Zeroes() }
