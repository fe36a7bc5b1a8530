package environment

import (
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/conformerrl/timestep"
)

// StepLimit ends episodes once they have taken a fixed number of steps
type StepLimit struct {
	budget int
}

// NewStepLimit returns an Ender for episodes of budget steps
func NewStepLimit(budget int) StepLimit { return StepLimit{budget} }

// End implements the Ender interface
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number < s.budget {
		return false
	}
	t.StepType = timestep.Last
	return true
}

// FunctionEnder ends an episode whenever a function of the TimeStep
// returns true
type FunctionEnder struct {
	end func(*timestep.TimeStep) bool
}

// NewFunctionEnder returns a new FunctionEnder which ends episodes when
// f returns true
func NewFunctionEnder(f func(*timestep.TimeStep) bool) *FunctionEnder {
	return &FunctionEnder{f}
}

// End implements the Ender interface
func (f *FunctionEnder) End(t *timestep.TimeStep) bool {
	if f.end(t) {
		t.StepType = timestep.Last
		return true
	}
	return false
}

// NewEnergyLimit returns an Ender that ends episodes as soon as the
// energy of the relaxed conformation relative to the reference energy
// leaves interval
func NewEnergyLimit(interval r1.Interval) *FunctionEnder {
	return NewFunctionEnder(func(t *timestep.TimeStep) bool {
		rel := t.Info.Energy - t.Info.StandardEnergy
		return rel < interval.Min || rel > interval.Max
	})
}
