// Package environment implements conformer environments: state
// machines wrapping a single molecule in which actions set torsion
// angles and rewards are derived from the energy of the relaxed
// conformation.
//
// The reward, action and observation behaviour of an environment are
// three independent strategies injected at construction.
package environment

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/conformerrl/molecule"
	"github.com/samuelfneumann/conformerrl/timestep"
)

var (
	// ErrSequencing is returned when Step is called before Reset or
	// after an episode has ended without an intervening Reset.
	ErrSequencing = errors.New("environment: step called out of sequence")

	// ErrInvalidAction is returned when an action has the wrong shape
	// or an out of range value. The environment is not mutated.
	ErrInvalidAction = errors.New("environment: invalid action")
)

// State is the lifecycle state of an environment
type State int

const (
	Uninitialized State = iota
	Ready
	Stepping
	Done
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	case Stepping:
		return "Stepping"
	case Done:
		return "Done"
	}
	return "Unknown"
}

// Environment is an episodic environment acting on a single molecule
type Environment interface {
	// Reset starts a new episode and returns its first TimeStep
	Reset(ctx context.Context) (timestep.TimeStep, error)

	// Step takes one action, returning the next TimeStep and whether
	// the episode has ended
	Step(ctx context.Context, action mat.Vector) (timestep.TimeStep, bool,
		error)

	// Observation returns a copy of the current observation
	Observation() (timestep.Observation, error)

	// ValidateAction returns the error Step would return for action
	// without stepping
	ValidateAction(action mat.Vector) error

	// FeatureDims returns the widths of the node and edge feature rows
	// of every observation
	FeatureDims() (node, edge int)

	ActionSpec() Spec
	State() State
}

// Ender decides whether an episode ends on a TimeStep. If it does, End
// marks the TimeStep as the last of its episode.
type Ender interface {
	End(t *timestep.TimeStep) bool
}

// Starter chooses the initial conformation of an episode by mutating
// the embedding of the molecule in place.
type Starter interface {
	Start(c *molecule.Conformation)
}

// RewardStrategy computes the reward of a relaxed conformation. Reset
// is called at the start of each episode to clear any memory of the
// conformers seen so far.
type RewardStrategy interface {
	Reset()
	Reward(energy, standardEnergy float64, c *molecule.Conformation) float64
}

// ActionStrategy validates actions and converts them to target
// dihedral angles in degrees, one per torsion.
type ActionStrategy interface {
	Validate(action mat.Vector, numTorsions int) error
	Targets(action mat.Vector) []float64
	Spec(numTorsions int) Spec
}

// ObservationStrategy converts a conformation into an Observation
type ObservationStrategy interface {
	Observe(c *molecule.Conformation) timestep.Observation
	NodeDim() int
}
