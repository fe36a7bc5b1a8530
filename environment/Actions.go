package environment

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DiscreteAction interprets each action element as a bin index in
// [0, Bins). Bin a sets its torsion to -180 + (360/Bins)*a degrees.
type DiscreteAction struct {
	Bins int
}

// NewDiscreteAction returns a new DiscreteAction with bins bins
func NewDiscreteAction(bins int) (DiscreteAction, error) {
	if bins < 1 {
		return DiscreteAction{}, errors.Errorf("newDiscreteAction: bins "+
			"must be positive, got %d", bins)
	}
	return DiscreteAction{Bins: bins}, nil
}

// Validate implements the ActionStrategy interface
func (d DiscreteAction) Validate(action mat.Vector, numTorsions int) error {
	if action == nil || action.Len() != numTorsions {
		return errors.Wrapf(ErrInvalidAction, "expected %d action elements",
			numTorsions)
	}
	for i := 0; i < action.Len(); i++ {
		a := action.AtVec(i)
		if a != math.Trunc(a) || a < 0 || a >= float64(d.Bins) {
			return errors.Wrapf(ErrInvalidAction, "element %d: bin %v not "+
				"in [0, %d)", i, a, d.Bins)
		}
	}
	return nil
}

// Targets implements the ActionStrategy interface
func (d DiscreteAction) Targets(action mat.Vector) []float64 {
	width := 360.0 / float64(d.Bins)
	out := make([]float64, action.Len())
	for i := range out {
		out[i] = -180 + width*action.AtVec(i)
	}
	return out
}

// Spec implements the ActionStrategy interface
func (d DiscreteAction) Spec(numTorsions int) Spec {
	low := make([]float64, numTorsions)
	high := make([]float64, numTorsions)
	for i := range high {
		high[i] = float64(d.Bins - 1)
	}
	return NewSpec(mat.NewVecDense(1, []float64{float64(numTorsions)}),
		Action, mat.NewVecDense(numTorsions, low),
		mat.NewVecDense(numTorsions, high), Discrete)
}

// ContinuousAction interprets each action element as a value in
// [-1, 1] which maps linearly to a dihedral in [-180, 180] degrees.
type ContinuousAction struct{}

// Validate implements the ActionStrategy interface
func (ContinuousAction) Validate(action mat.Vector, numTorsions int) error {
	if action == nil || action.Len() != numTorsions {
		return errors.Wrapf(ErrInvalidAction, "expected %d action elements",
			numTorsions)
	}
	for i := 0; i < action.Len(); i++ {
		a := action.AtVec(i)
		if math.IsNaN(a) || a < -1 || a > 1 {
			return errors.Wrapf(ErrInvalidAction, "element %d: %v not in "+
				"[-1, 1]", i, a)
		}
	}
	return nil
}

// Targets implements the ActionStrategy interface
func (ContinuousAction) Targets(action mat.Vector) []float64 {
	out := make([]float64, action.Len())
	for i := range out {
		out[i] = 180 * action.AtVec(i)
	}
	return out
}

// Spec implements the ActionStrategy interface
func (ContinuousAction) Spec(numTorsions int) Spec {
	low := make([]float64, numTorsions)
	high := make([]float64, numTorsions)
	for i := range low {
		low[i], high[i] = -1, 1
	}
	return NewSpec(mat.NewVecDense(1, []float64{float64(numTorsions)}),
		Action, mat.NewVecDense(numTorsions, low),
		mat.NewVecDense(numTorsions, high), Continuous)
}
