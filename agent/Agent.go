// Package agent defines the interface of agents that act in a batch of
// environments stepped in lockstep
package agent

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/network"
	"github.com/samuelfneumann/conformerrl/timestep"
)

// Agent determines the implementation details of an agent or algorithm
//
// An Agent is composed of a Learner, which learns weights, and a Policy
// which chooses actions in each state. The Policy chooses which actions
// are taken, and the Learner uses these actions to update the Policy.
type Agent interface {
	Learner
	Policy
}

// Learner implements a learning algorithm that defines how weights are
// updated.
type Learner interface {
	// Observe records the results of the last actions returned by Act,
	// one Result per environment slot
	Observe(results []vecenv.Result) error

	// Ready returns whether enough experience was collected to Step
	Ready() bool

	// Step performs a single update to the learner
	Step() (Stats, error)

	// Steps returns the number of updates performed so far
	Steps() int
}

// Policy represents a recurrent policy over a batch of environments.
// Slot i of every batch is the same environment until the width of the
// batch is changed with ResetState.
type Policy interface {
	// Act returns one action per environment slot
	Act(obs []timestep.Observation) ([]mat.Vector, error)

	// State returns a copy of the recurrent state
	State() network.AgentState

	// SetState replaces the recurrent state
	SetState(network.AgentState) error

	// ResetState sets a zero recurrent state for width slots,
	// discarding any experience not yet used for learning
	ResetState(width int) error

	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// Stats summarizes one update of a Learner
type Stats struct {
	Loss       float64
	PolicyLoss float64
	ValueLoss  float64
	Entropy    float64
	MeanReward float64
}
