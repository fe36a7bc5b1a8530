package initwfn

import (
	"math"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// GainConfig configures the Glorot and He initializers, which differ
// only in how the gain scales the fan of a layer
type GainConfig struct {
	Gain float64

	kind Type
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GainConfig{Gain: gain, kind: GlorotU})
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GainConfig{Gain: gain, kind: GlorotN})
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(GainConfig{Gain: gain, kind: HeU})
}

// NewHeN returns a new He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(GainConfig{Gain: gain, kind: HeN})
}

// Type implements the Config interface
func (g GainConfig) Type() Type { return g.kind }

// Create implements the Config interface
func (g GainConfig) Create() G.InitWFn {
	switch g.kind {
	case GlorotN:
		return G.GlorotN(g.Gain)
	case HeU:
		return G.HeU(g.Gain)
	case HeN:
		return G.HeN(g.Gain)
	}
	return G.GlorotU(g.Gain)
}

// Validate implements the Config interface
func (g GainConfig) Validate() error {
	if !(g.Gain > 0) || math.IsInf(g.Gain, 0) {
		return errors.Errorf("%v: gain must be positive and finite, got %v",
			g.kind, g.Gain)
	}
	return nil
}

// ConstantConfig initializes every weight to Value
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a weight initializer setting every weight to
// value
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{value})
}

// NewZeroes returns a weight initializer setting every weight to 0
func NewZeroes() (*InitWFn, error) { return NewConstant(0) }

// NewOnes returns a weight initializer setting every weight to 1
func NewOnes() (*InitWFn, error) { return NewConstant(1) }

// Type implements the Config interface
func (c ConstantConfig) Type() Type {
	switch c.Value {
	case 0:
		return Zeroes
	case 1:
		return Ones
	}
	return Constant
}

// Create implements the Config interface
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}

// Validate implements the Config interface
func (c ConstantConfig) Validate() error {
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return errors.Errorf("constant: value must be finite, got %v",
			c.Value)
	}
	return nil
}

// GaussianConfig draws weights from a normal distribution
type GaussianConfig struct {
	Mean, StdDev float64
}

// NewGaussian returns a new gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stddev})
}

// Type implements the Config interface
func (g GaussianConfig) Type() Type { return Gaussian }

// Create implements the Config interface
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}

// Validate implements the Config interface
func (g GaussianConfig) Validate() error {
	if !(g.StdDev > 0) {
		return errors.Errorf("gaussian: standard deviation must be "+
			"positive, got %v", g.StdDev)
	}
	return nil
}

// UniformConfig draws weights uniformly from [Low, High)
type UniformConfig struct {
	Low, High float64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	return newInitWFn(UniformConfig{Low: low, High: high})
}

// Type implements the Config interface
func (u UniformConfig) Type() Type { return Uniform }

// Create implements the Config interface
func (u UniformConfig) Create() G.InitWFn {
	return G.Uniform(u.Low, u.High)
}

// Validate implements the Config interface
func (u UniformConfig) Validate() error {
	if !(u.Low < u.High) {
		return errors.Errorf("uniform: empty interval [%v, %v)", u.Low,
			u.High)
	}
	return nil
}
