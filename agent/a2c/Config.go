package a2c

import (
	"math"

	"github.com/pkg/errors"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/environment"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/initwfn"
	"github.com/samuelfneumann/conformerrl/solver"
)

func init() {
	agent.Register(agent.A2CGNN, Config{})
}

// Config implements a configuration of an A2C agent
type Config struct {
	// RolloutLength is the number of lockstep steps collected before
	// each update
	RolloutLength int

	Gamma  float64 // Discount factor
	Lambda float64 // λ of GAE(λ); 1 gives n-step advantages

	ValueCoef   float64 // Weight of the value loss
	EntropyCoef float64 // Weight of the entropy bonus

	// Architecture of both the actor and the critic
	Hidden    int
	Rounds    int
	PoolSteps int

	Init   *initwfn.InitWFn
	Solver *solver.Solver
}

// DefaultConfig returns the default A2C configuration
func DefaultConfig() (Config, error) {
	init, err := initwfn.NewGlorotU(math.Sqrt(2))
	if err != nil {
		return Config{}, err
	}
	s, err := solver.NewAdam(5e-6*math.Sqrt(2), 1e-5, 0.9, 0.999, 1, 5)
	if err != nil {
		return Config{}, err
	}

	return Config{
		RolloutLength: 5,
		Gamma:         0.9999,
		Lambda:        1,
		ValueCoef:     0.25,
		EntropyCoef:   0.001,
		Hidden:        128,
		Rounds:        6,
		PoolSteps:     6,
		Init:          init,
		Solver:        s,
	}, nil
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	if c.RolloutLength < 1 {
		return errors.Errorf("a2c: rollout length must be positive, got %d",
			c.RolloutLength)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return errors.Errorf("a2c: γ must be in [0, 1], got %v", c.Gamma)
	}
	if c.Lambda < 0 || c.Lambda > 1 {
		return errors.Errorf("a2c: λ must be in [0, 1], got %v", c.Lambda)
	}
	if c.ValueCoef < 0 || c.EntropyCoef < 0 {
		return errors.Errorf("a2c: loss coefficients must be non-negative, "+
			"got %v and %v", c.ValueCoef, c.EntropyCoef)
	}
	if c.Init == nil {
		return errors.New("a2c: no weight initializer")
	}
	if c.Solver == nil {
		return errors.New("a2c: no solver")
	}
	return nil
}

// Type returns the type of agent the Config creates
func (c Config) Type() agent.Type { return agent.A2CGNN }

// CreateAgent creates an A2C agent acting in the environments of m.
// The feature widths and number of bins are taken from the first
// environment, which need not have been reset.
func (c Config) CreateAgent(m *vecenv.Manager, seed uint64) (agent.Agent,
	error) {
	env := m.Env(0)
	spec := env.ActionSpec()
	if spec.Cardinality != environment.Discrete {
		return nil, errors.Errorf("createAgent: A2C needs discrete actions, "+
			"got %v", spec.Cardinality)
	}

	nodeDim, edgeDim := env.FeatureDims()
	dims := Dims{NodeDim: nodeDim, EdgeDim: edgeDim, Bins: spec.Bins()}
	return New(c, dims, m.NumEnvs(), seed)
}

// Dims are the observation and action widths an agent is built for
type Dims struct {
	NodeDim int
	EdgeDim int
	Bins    int
}
