// Package envconfig provides configuration structs for configuring
// conformer environments by registered environment id. Task
// configurations in this package are JSON serializable.
package envconfig

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/conformerrl/environment"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/forcefield"
	"github.com/samuelfneumann/conformerrl/molecule"
)

// EnvID is the registered name of an environment composition
type EnvID string

// Environments available for configuration
const (
	GibbsEnv           EnvID = "GibbsEnv-v0"
	GibbsPruningEnv    EnvID = "GibbsPruningEnv-v0"
	UniqueGibbsEnv     EnvID = "UniqueGibbsEnv-v0"
	GibbsSkeletonEnv   EnvID = "GibbsSkeletonEnv-v0"
	ContinuousGibbsEnv EnvID = "ContinuousGibbsEnv-v0"
)

// StartKind names how the first conformation of an episode is chosen
type StartKind string

const (
	StartUniform   StartKind = "uniform"   // Uniform torsion angles
	StartBins      StartKind = "bins"      // Uniform over the action bins
	StartEmbedding StartKind = "embedding" // The embedding of the molecule
)

// Strategies is the reward, action and observation composition of a
// registered environment
type Strategies struct {
	Reward      environment.RewardStrategy
	Action      environment.ActionStrategy
	Observation environment.ObservationStrategy
}

// Composer creates fresh strategies for one environment instance.
// Reward strategies may hold per-episode memory, so every environment
// gets its own.
type Composer func(t Task) Strategies

var registry = map[EnvID]Composer{
	GibbsEnv: func(t Task) Strategies {
		return Strategies{
			Reward:      environment.GibbsReward{Scale: t.RewardScale},
			Action:      environment.DiscreteAction{Bins: t.Bins},
			Observation: environment.GraphObservation{},
		}
	},
	GibbsPruningEnv: func(t Task) Strategies {
		r := environment.NewPruningGibbsReward(t.PruneThreshold,
			t.UniqueThreshold, t.PrunePenalty)
		r.Scale = t.RewardScale
		return Strategies{
			Reward:      r,
			Action:      environment.DiscreteAction{Bins: t.Bins},
			Observation: environment.GraphObservation{},
		}
	},
	UniqueGibbsEnv: func(t Task) Strategies {
		r := environment.NewUniqueGibbsReward(t.UniqueThreshold,
			t.UniqueFloor)
		r.Scale = t.RewardScale
		return Strategies{
			Reward:      r,
			Action:      environment.DiscreteAction{Bins: t.Bins},
			Observation: environment.GraphObservation{},
		}
	},
	GibbsSkeletonEnv: func(t Task) Strategies {
		return Strategies{
			Reward:      environment.GibbsReward{Scale: t.RewardScale},
			Action:      environment.DiscreteAction{Bins: t.Bins},
			Observation: environment.SkeletonObservation{},
		}
	},
	ContinuousGibbsEnv: func(t Task) Strategies {
		return Strategies{
			Reward:      environment.GibbsReward{Scale: t.RewardScale},
			Action:      environment.ContinuousAction{},
			Observation: environment.GraphObservation{},
		}
	},
}

// Register registers a new environment composition under id. It
// panics if id is already registered.
func Register(id EnvID, c Composer) {
	if _, ok := registry[id]; ok {
		panic("register: environment " + string(id) + " already registered")
	}
	registry[id] = c
}

// Task implements a specific configuration of a pool of environments
// of one registered id acting on one molecule.
type Task struct {
	EnvID EnvID

	// MolConfig is the molecule the environments act on. It is usually
	// filled in from a molecule.Spec or the current curriculum level.
	MolConfig molecule.Config `json:",omitempty"`

	MaxSteps    int    // Episode step budget
	NumEnvs     int    // Number of environments in the pool
	Concurrency bool   // Step environments in parallel
	Workers     int    // Parallel step limit, GOMAXPROCS if zero
	Seed        uint64 // See EnvSeed

	Discount              float64
	Bins                  int // Discrete action bins per torsion
	StandardEnergySamples int
	RewardScale           float64

	UniqueThreshold float64 // Degrees
	UniqueFloor     float64
	PruneThreshold  float64 // Energy above reference
	PrunePenalty    float64

	ForceField forcefield.Params

	// Start is StartUniform if empty
	Start StartKind `json:",omitempty"`

	// EnergyWindow ends episodes early once the energy relative to the
	// reference energy leaves it
	EnergyWindow *r1.Interval `json:",omitempty"`
}

// DefaultTask returns a Task with defaults for every field but the
// molecule
func DefaultTask(id EnvID) Task {
	return Task{
		EnvID:                 id,
		MaxSteps:              200,
		NumEnvs:               1,
		Discount:              0.9999,
		Bins:                  6,
		StandardEnergySamples: 200,
		RewardScale:           1,
		UniqueThreshold:       10,
		UniqueFloor:           1e-3,
		PruneThreshold:        10,
		PrunePenalty:          0.1,
		ForceField:            forcefield.DefaultParams(),
	}
}

// WithMolecule returns a copy of the Task acting on molecule c
func (t Task) WithMolecule(c molecule.Config) Task {
	t.MolConfig = c
	return t
}

// Validate returns an error describing whether the Task is valid
func (t Task) Validate() error {
	if _, ok := registry[t.EnvID]; !ok {
		return errors.Errorf("task: no such environment %q", t.EnvID)
	}
	if t.NumEnvs < 1 {
		return errors.Errorf("task: need at least one environment, got %d",
			t.NumEnvs)
	}
	if t.Bins < 1 {
		return errors.Errorf("task: bins must be positive, got %d", t.Bins)
	}
	switch t.Start {
	case "", StartUniform, StartBins, StartEmbedding:
	default:
		return errors.Errorf("task: no such start %q", t.Start)
	}
	if w := t.EnergyWindow; w != nil && w.Min > w.Max {
		return errors.Errorf("task: empty energy window [%v, %v]", w.Min,
			w.Max)
	}
	return t.ForceField.Validate()
}

// Create returns the environments described by the Task. Each
// environment gets its own strategies, oracle and seed. If the molecule
// has no standard energy, it is estimated once here and shared by every
// environment of the pool.
func (t Task) Create(ctx context.Context) ([]environment.Environment,
	error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	compose := registry[t.EnvID]
	factory, err := forcefield.NewUnitedAtomFactory(t.ForceField)
	if err != nil {
		return nil, errors.Wrap(err, "create")
	}

	if t.MolConfig.StandardEnergy == nil {
		top, err := molecule.NewTopology(t.MolConfig)
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		rng := rand.New(rand.NewSource(t.EnvSeed(t.NumEnvs)))
		e, err := forcefield.StandardEnergy(ctx, factory(), top,
			t.StandardEnergySamples, rng)
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		t.MolConfig = t.MolConfig.WithStandardEnergy(e)
	}

	envs := make([]environment.Environment, t.NumEnvs)
	for i := range envs {
		s := compose(t)
		c := environment.Config{
			Molecule:              t.MolConfig,
			MaxSteps:              t.MaxSteps,
			Discount:              t.Discount,
			StandardEnergySamples: t.StandardEnergySamples,
			Seed:                  t.EnvSeed(i),
		}
		env, err := environment.New(c, factory(), s.Reward, s.Action,
			s.Observation)
		if err != nil {
			return nil, errors.Wrapf(err, "create: environment %d", i)
		}
		if err := t.configure(env, c.Seed); err != nil {
			return nil, errors.Wrapf(err, "create: environment %d", i)
		}
		envs[i] = env
	}
	return envs, nil
}

// configure sets the starter and early stopping of env
func (t Task) configure(env *environment.Conformer, seed uint64) error {
	switch t.Start {
	case StartBins:
		s, err := environment.NewBinStarter(t.Bins, seed+2)
		if err != nil {
			return err
		}
		env.SetStarter(s)
	case StartEmbedding:
		env.SetStarter(environment.EmbeddingStarter{})
	}

	if t.EnergyWindow != nil {
		env.AddEnder(environment.NewEnergyLimit(*t.EnergyWindow))
	}
	return nil
}

// EnvSeed returns the seed of environment i. Environments are
// environment.SeedStreams seeds apart so that no two draw from the same
// stream. The block of environment NumEnvs estimates the standard
// energy.
func (t Task) EnvSeed(i int) uint64 {
	return t.Seed + uint64(i)*environment.SeedStreams
}

// NextSeed returns the first seed not used by the Task, from which
// another pool can be seeded
func (t Task) NextSeed() uint64 {
	return t.EnvSeed(t.NumEnvs + 1)
}

// CreateManager returns a vectorized Manager over the environments
// described by the Task
func (t Task) CreateManager(ctx context.Context) (*vecenv.Manager, error) {
	envs, err := t.Create(ctx)
	if err != nil {
		return nil, err
	}
	return vecenv.New(envs, t.Concurrency, t.Workers)
}
