package solver

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64
	Epsilon  float64 // Smoothing factor
	Beta1    float64
	Beta2    float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize, -1.0)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int,
	clip float64) (*Solver, error) {
	return newSolver(&AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
		Clip:     clip,
	})
}

func (a *AdamConfig) Type() Type { return Adam }

func (a *AdamConfig) Create() G.Solver {
	opts := append(common(a.StepSize, a.Batch, a.Clip),
		G.WithEps(a.Epsilon), G.WithBeta1(a.Beta1), G.WithBeta2(a.Beta2))
	return G.NewAdamSolver(opts...)
}

func (a *AdamConfig) Validate() error {
	if err := validate("adam", a.StepSize, a.Batch); err != nil {
		return err
	}
	if a.Epsilon < 0 {
		return errors.Errorf("adam: epsilon must be non-negative, got %v",
			a.Epsilon)
	}
	if a.Beta1 < 0 || a.Beta1 >= 1 || a.Beta2 < 0 || a.Beta2 >= 1 {
		return errors.Errorf("adam: betas must be in [0, 1), got %v and %v",
			a.Beta1, a.Beta2)
	}
	return nil
}

// VanillaConfig describes a configuration of the vanilla gradient
// descent solver
type VanillaConfig struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64, batchSize int,
	clip float64) (*Solver, error) {
	return newSolver(&VanillaConfig{StepSize: stepSize, Batch: batchSize,
		Clip: clip})
}

func (v *VanillaConfig) Type() Type { return Vanilla }

func (v *VanillaConfig) Create() G.Solver {
	return G.NewVanillaSolver(common(v.StepSize, v.Batch, v.Clip)...)
}

func (v *VanillaConfig) Validate() error {
	return validate("vanilla", v.StepSize, v.Batch)
}

// RMSPropConfig describes a configuration of the RMSProp solver.
// Gorgonia fixes η at 0.001, so it is not configurable.
type RMSPropConfig struct {
	StepSize float64
	Epsilon  float64
	Rho      float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

// NewDefaultRMSProp returns a new RMSProp Solver with default
// hyperparameters
func NewDefaultRMSProp(stepSize float64, batchSize int) (*Solver, error) {
	return NewRMSProp(stepSize, 1e-8, 0.999, batchSize, -1.0)
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	return newSolver(&RMSPropConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Rho:      rho,
		Batch:    batchSize,
		Clip:     clip,
	})
}

func (r *RMSPropConfig) Type() Type { return RMSProp }

func (r *RMSPropConfig) Create() G.Solver {
	opts := append(common(r.StepSize, r.Batch, r.Clip), G.WithEps(r.Epsilon),
		G.WithRho(r.Rho))
	return G.NewRMSPropSolver(opts...)
}

func (r *RMSPropConfig) Validate() error {
	if err := validate("rmsprop", r.StepSize, r.Batch); err != nil {
		return err
	}
	if r.Rho <= 0 || r.Rho >= 1 {
		return errors.Errorf("rmsprop: rho must be in (0, 1), got %v", r.Rho)
	}
	return nil
}

// common returns the options shared by every solver
func common(stepSize float64, batch int, clip float64) []G.SolverOpt {
	opts := []G.SolverOpt{
		G.WithLearnRate(stepSize),
		G.WithBatchSize(float64(batch)),
	}
	if clip > 0 {
		opts = append(opts, G.WithClip(clip))
	}
	return opts
}

func validate(name string, stepSize float64, batch int) error {
	if stepSize <= 0 {
		return errors.Errorf("%v: step size must be positive, got %v", name,
			stepSize)
	}
	if batch < 1 {
		return errors.Errorf("%v: batch size must be positive, got %v", name,
			batch)
	}
	return nil
}
