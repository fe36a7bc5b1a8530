package environment

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/forcefield"
	"github.com/samuelfneumann/conformerrl/molecule"
	"github.com/samuelfneumann/conformerrl/timestep"
)

// SeedStreams is the number of consecutive seeds a Conformer with Seed
// s draws from: s for its own RNG, s+1 for the default starter and s+2
// for any starter set by the caller.
const SeedStreams = 3

// Config configures a Conformer environment
type Config struct {
	Molecule molecule.Config
	MaxSteps int     // Episode step budget
	Discount float64 // Discount reported in each TimeStep

	// StandardEnergySamples is the number of randomized conformers
	// minimized to estimate the reference energy when the molecule
	// Config does not store one
	StandardEnergySamples int
	Seed                  uint64
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	if err := c.Molecule.Validate(); err != nil {
		return err
	}
	if c.MaxSteps < 1 {
		return errors.Errorf("environment config: max steps must be "+
			"positive, got %d", c.MaxSteps)
	}
	if c.Discount < 0 || c.Discount > 1 {
		return errors.Errorf("environment config: discount %v not in [0, 1]",
			c.Discount)
	}
	if c.Molecule.StandardEnergy == nil && c.StandardEnergySamples < 1 {
		return errors.New("environment config: standard energy samples " +
			"must be positive when the molecule has no standard energy")
	}
	return nil
}

// Conformer is a conformer environment over a single molecule. Each
// step sets the dihedral of every rotatable torsion, relaxes the
// conformation with the energy Oracle and rewards the relaxed energy.
//
// A Conformer exclusively owns its conformation, RNG and Oracle and
// may be stepped concurrently with other Conformers.
type Conformer struct {
	config   Config
	topology *molecule.Topology
	conf     *molecule.Conformation
	oracle   forcefield.Oracle
	rng      *rand.Rand

	reward   RewardStrategy
	action   ActionStrategy
	observer ObservationStrategy
	starter  Starter
	enders   []Ender

	state          State
	standardEnergy float64
	haveStandard   bool
	energy         float64
	step           int
	obs            timestep.Observation
}

// New returns a new Conformer environment in the Uninitialized state.
// Reset must be called before Step.
func New(c Config, oracle forcefield.Oracle, reward RewardStrategy,
	action ActionStrategy, observer ObservationStrategy) (*Conformer, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	if oracle == nil || reward == nil || action == nil || observer == nil {
		return nil, errors.New("new: oracle and strategies must not be nil")
	}

	top, err := molecule.NewTopology(c.Molecule)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	env := &Conformer{
		config:   c,
		topology: top,
		oracle:   oracle,
		rng:      rand.New(rand.NewSource(c.Seed)),
		reward:   reward,
		action:   action,
		observer: observer,
		starter:  NewUniformStarter(top.NumTorsions(), c.Seed+1),
		enders:   []Ender{NewStepLimit(c.MaxSteps)},
		state:    Uninitialized,
	}
	if c.Molecule.StandardEnergy != nil {
		env.standardEnergy = *c.Molecule.StandardEnergy
		env.haveStandard = true
	}
	return env, nil
}

// SetStarter sets the Starter used to choose the initial conformation
// of each episode
func (e *Conformer) SetStarter(s Starter) { e.starter = s }

// AddEnder adds a condition that ends episodes before the step budget
// is used up
func (e *Conformer) AddEnder(end Ender) { e.enders = append(e.enders, end) }

// Topology returns the topology of the molecule
func (e *Conformer) Topology() *molecule.Topology { return e.topology }

// State returns the lifecycle state of the environment
func (e *Conformer) State() State { return e.state }

// ActionSpec returns the action specification of the environment
func (e *Conformer) ActionSpec() Spec {
	return e.action.Spec(e.topology.NumTorsions())
}

// StandardEnergy returns the reference energy used to compute rewards.
// It is only valid after the first Reset.
func (e *Conformer) StandardEnergy() float64 { return e.standardEnergy }

// Energy returns the energy of the current conformation
func (e *Conformer) Energy() float64 { return e.energy }

// TorsionAngles returns the current angle of every rotatable torsion
func (e *Conformer) TorsionAngles() ([]float64, error) {
	if e.state == Uninitialized {
		return nil, errors.Wrap(ErrSequencing, "torsionAngles: environment "+
			"has not been reset")
	}
	return e.conf.TorsionAngles(), nil
}

// Reset starts a new episode from a freshly embedded and minimized
// conformation. The reference energy is computed on the first Reset
// only and reused for every later episode.
func (e *Conformer) Reset(ctx context.Context) (timestep.TimeStep, error) {
	conf, err := molecule.NewConformation(e.topology,
		e.config.Molecule.Positions)
	if err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}
	e.starter.Start(conf)

	energy, err := e.oracle.Minimize(ctx, conf)
	if err != nil {
		return timestep.TimeStep{}, errors.Wrap(err, "reset")
	}

	if !e.haveStandard {
		e.standardEnergy, err = forcefield.StandardEnergy(ctx, e.oracle,
			e.topology, e.config.StandardEnergySamples, e.rng)
		if err != nil {
			return timestep.TimeStep{}, errors.Wrap(err, "reset")
		}
		e.haveStandard = true
	}

	e.conf = conf
	e.energy = energy
	e.step = 0
	e.reward.Reset()
	e.obs = e.observer.Observe(conf)
	e.state = Ready

	ts := timestep.New(timestep.First, 0, e.config.Discount, e.obs.Clone(), 0)
	ts.Info = e.info()
	return ts, nil
}

// Step sets every rotatable torsion to the target given by action,
// relaxes the conformation and returns the next TimeStep and whether
// the episode has ended.
func (e *Conformer) Step(ctx context.Context, action mat.Vector) (
	timestep.TimeStep, bool, error) {
	if err := e.ValidateAction(action); err != nil {
		return timestep.TimeStep{}, false, errors.Wrap(err, "step")
	}

	for t, target := range e.action.Targets(action) {
		e.conf.SetDihedral(t, target)
	}
	energy, err := e.oracle.Minimize(ctx, e.conf)
	if err != nil {
		return timestep.TimeStep{}, false, errors.Wrap(err, "step")
	}

	e.energy = energy
	e.step++
	reward := e.reward.Reward(energy, e.standardEnergy, e.conf)
	e.obs = e.observer.Observe(e.conf)

	ts := timestep.New(timestep.Mid, reward, e.config.Discount, e.obs.Clone(),
		e.step)
	ts.Info = e.info()

	done := false
	for _, ender := range e.enders {
		if ender.End(&ts) {
			done = true
			break
		}
	}
	if done {
		e.state = Done
	} else {
		e.state = Stepping
	}

	klog.V(2).Infof("%s step %d: energy %.4f reward %.4f",
		e.topology.Config().Name, e.step, energy, reward)
	return ts, done, nil
}

// ValidateAction returns an error if Step could not take action in
// the current state
func (e *Conformer) ValidateAction(action mat.Vector) error {
	if e.state != Ready && e.state != Stepping {
		return errors.Wrapf(ErrSequencing, "environment is %v", e.state)
	}
	return e.action.Validate(action, e.topology.NumTorsions())
}

// FeatureDims returns the widths of the node and edge feature rows
func (e *Conformer) FeatureDims() (node, edge int) {
	return e.observer.NodeDim(), EdgeDim
}

// Observation returns a copy of the current observation. Calling it
// twice without an intervening Step returns identical observations.
func (e *Conformer) Observation() (timestep.Observation, error) {
	if e.state == Uninitialized {
		return timestep.Observation{}, errors.Wrap(ErrSequencing,
			"observation: environment has not been reset")
	}
	return e.obs.Clone(), nil
}

func (e *Conformer) info() timestep.Info {
	return timestep.Info{Energy: e.energy, StandardEnergy: e.standardEnergy}
}
