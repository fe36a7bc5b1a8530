// Package experiment implements functionality for running a training
// run of an agent on pools of conformer environments
package experiment

import (
	"context"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/curriculum"
	"github.com/samuelfneumann/conformerrl/environment"
	"github.com/samuelfneumann/conformerrl/environment/envconfig"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/checkpointer"
	"github.com/samuelfneumann/conformerrl/experiment/tracker"
	"github.com/samuelfneumann/conformerrl/experiment/trackers"
	"github.com/samuelfneumann/conformerrl/molecule"
)

// Experiment outlines structs that can run experiments. Run trains
// until the optimizer step limit is reached or the context is done.
// Trackers cache data generated during training in RAM and Save writes
// it to disk, usually after Run has returned.
type Experiment interface {
	Run(ctx context.Context) error
	Evaluate(ctx context.Context) (Summary, error)

	// Adds a new tracker.Tracker to the (possibly already running)
	// experiment
	Register(t tracker.Tracker)

	// Save all tracked data to disk
	Save() error
}

// Type is the kind of an experiment
type Type string

const (
	OnlineExp Type = "OnlineExperiment"
)

// Config represents a configuration of an experiment
type Config struct {
	Type
	Settings

	// SaveInterval is the number of optimizer steps between
	// checkpoints, zero to disable checkpointing
	SaveInterval    int
	CheckpointNames checkpointer.Naming `json:",omitempty"`

	// Molecule is trained on when there is no Curriculum
	Molecule   molecule.Spec
	Curriculum *curriculum.Config `json:",omitempty"`

	Train envconfig.Task
	Eval  envconfig.Task

	Agent agent.TypedConfig

	// Seed seeds the agent and both pools of environments
	Seed uint64

	// OutputDir holds one directory of tracked data and checkpoints per
	// run
	OutputDir string
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	if c.Type != OnlineExp {
		return errors.Errorf("config: no such experiment type %q", c.Type)
	}
	if err := c.Settings.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.SaveInterval < 0 {
		return errors.Errorf("config: save interval must be non-negative, "+
			"got %d", c.SaveInterval)
	}
	if err := c.CheckpointNames.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if c.Curriculum != nil {
		if err := c.Curriculum.Validate(); err != nil {
			return errors.Wrap(err, "config")
		}
	} else if err := c.Molecule.Validate(); err != nil {
		return errors.Wrap(err, "config")
	}
	if err := c.Train.Validate(); err != nil {
		return errors.Wrap(err, "config: train")
	}
	if c.EvalInterval > 0 {
		if err := c.Eval.Validate(); err != nil {
			return errors.Wrap(err, "config: eval")
		}
	}
	if c.Agent.Config == nil {
		return errors.New("config: no agent configured")
	}
	return errors.Wrap(c.Agent.Config.Validate(), "config: agent")
}

// Pools holds what the environments of an experiment are built from
type Pools struct {
	Train, Eval         *vecenv.Manager // Eval is nil if disabled
	TrainTask, EvalTask envconfig.Task
	Curriculum          *curriculum.Controller // nil without a curriculum
}

// Environments builds the training and evaluation pools of the
// experiment on its molecule, or on the first curriculum level
func (c Config) Environments(ctx context.Context) (Pools, error) {
	var p Pools
	var mol molecule.Config
	if c.Curriculum != nil {
		ctrl, err := curriculum.New(*c.Curriculum)
		if err != nil {
			return Pools{}, errors.Wrap(err, "environments")
		}
		p.Curriculum = ctrl
		mol = ctrl.CurrentConfig()
	} else {
		var err error
		if mol, err = c.Molecule.Build(); err != nil {
			return Pools{}, errors.Wrap(err, "environments")
		}
	}

	p.TrainTask = c.Train
	p.TrainTask.Seed = c.Seed
	p.EvalTask = c.Eval
	p.EvalTask.Seed = p.TrainTask.NextSeed()

	withEval := c.EvalInterval > 0
	train, eval, err := createPools(ctx, p.TrainTask, p.EvalTask, mol,
		withEval)
	if err != nil {
		return Pools{}, errors.Wrap(err, "environments")
	}
	if p.Train, err = vecenv.New(train, c.Train.Concurrency,
		c.Train.Workers); err != nil {
		return Pools{}, errors.Wrap(err, "environments")
	}
	if withEval {
		if p.Eval, err = vecenv.New(eval, c.Eval.Concurrency,
			c.Eval.Workers); err != nil {
			return Pools{}, errors.Wrap(err, "environments")
		}
	}
	return p, nil
}

// Create returns the experiment described by the Config. Tracked data
// and checkpoints go to OutputDir/runID. Metrics are registered with
// registerer unless it is nil, and a progress bar is drawn to progress
// unless it is nil.
func (c Config) Create(ctx context.Context, runID string,
	registerer prometheus.Registerer, progress io.Writer) (Experiment,
	error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "create")
	}

	pools, err := c.Environments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create")
	}
	a, err := c.Agent.Config.CreateAgent(pools.Train, c.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "create: could not create agent")
	}

	dir := filepath.Join(c.OutputDir, runID)
	opts := []Option{WithTrackers(
		trackers.NewReturn(filepath.Join(dir, "return.gob")),
		trackers.NewEpisodeLength(filepath.Join(dir, "episode_length.gob")),
	)}

	if c.SaveInterval > 0 {
		s, ok := a.(checkpointer.Serializable)
		if !ok {
			return nil, errors.Errorf("create: agent %v cannot be "+
				"checkpointed", c.Agent.Type)
		}
		names, err := c.CheckpointNames.Filenames(
			filepath.Join(dir, "checkpoints", "agent"), "gob")
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		check, err := checkpointer.NewNStep(c.SaveInterval, s, names)
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		opts = append(opts, WithCheckpointers(check))
	}

	if registerer != nil {
		m, err := NewMetrics(registerer)
		if err != nil {
			return nil, errors.Wrap(err, "create")
		}
		opts = append(opts, WithMetrics(m))
	}
	if progress != nil {
		opts = append(opts, WithProgress(progress))
	}
	if pools.Curriculum != nil {
		opts = append(opts, WithCurriculum(pools.Curriculum, pools.TrainTask,
			pools.EvalTask))
	}

	return NewOnline(a, pools.Train, pools.Eval, c.Settings, opts...)
}

// createPools creates the environments of the training and, if
// withEval, evaluation pools on molecule mol. The evaluation pool
// shares the reference energy estimated for the training pool.
func createPools(ctx context.Context, train, eval envconfig.Task,
	mol molecule.Config, withEval bool) ([]environment.Environment,
	[]environment.Environment, error) {
	trainEnvs, err := train.WithMolecule(mol).Create(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "train")
	}
	if !withEval {
		return trainEnvs, nil, nil
	}

	if s, ok := trainEnvs[0].(interface{ StandardEnergy() float64 }); ok {
		mol = mol.WithStandardEnergy(s.StandardEnergy())
	}
	evalEnvs, err := eval.WithMolecule(mol).Create(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "eval")
	}
	return trainEnvs, evalEnvs, nil
}
