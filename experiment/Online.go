package experiment

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/curriculum"
	"github.com/samuelfneumann/conformerrl/environment/envconfig"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/checkpointer"
	"github.com/samuelfneumann/conformerrl/experiment/tracker"
	"github.com/samuelfneumann/conformerrl/timestep"
	"github.com/samuelfneumann/conformerrl/utils/progressbar"
)

const (
	modeTrain = "train"
	modeEval  = "eval"
)

// Summary summarizes one evaluation
type Summary struct {
	MeanReward        float64 // Mean total reward per episode
	MeanEpisodeLength float64
	Episodes          int
}

// Settings control the length of an Online experiment and how often it
// evaluates. An EvalInterval of zero disables evaluation.
type Settings struct {
	MaxSteps     int // Optimizer steps
	EvalInterval int // Optimizer steps between evaluations
	EvalEpisodes int // Episodes per evaluation
}

// Validate returns an error describing whether the Settings are valid
func (s Settings) Validate() error {
	if s.MaxSteps < 1 {
		return errors.Errorf("settings: max steps must be positive, got %d",
			s.MaxSteps)
	}
	if s.EvalInterval < 0 {
		return errors.Errorf("settings: eval interval must be "+
			"non-negative, got %d", s.EvalInterval)
	}
	if s.EvalInterval > 0 && s.EvalEpisodes < 1 {
		return errors.Errorf("settings: need at least one evaluation "+
			"episode, got %d", s.EvalEpisodes)
	}
	return nil
}

// Option configures an Online experiment
type Option func(*Online)

// WithTrackers adds Trackers of the training environments
func WithTrackers(t ...tracker.Tracker) Option {
	return func(o *Online) { o.trackers = append(o.trackers, t...) }
}

// WithCheckpointers adds Checkpointers fired after each optimizer step
func WithCheckpointers(c ...checkpointer.Checkpointer) Option {
	return func(o *Online) { o.checkpointers = append(o.checkpointers, c...) }
}

// WithMetrics records the run in m
func WithMetrics(m *Metrics) Option {
	return func(o *Online) { o.metrics = m }
}

// WithProgress draws a progress bar of the optimizer steps to out
func WithProgress(out io.Writer) Option {
	return func(o *Online) { o.progressOut = out }
}

// WithCurriculum moves training between the levels of c. The molecule
// of each level is run with the environment settings of train and
// eval.
func WithCurriculum(c *curriculum.Controller, train,
	eval envconfig.Task) Option {
	return func(o *Online) {
		o.curriculum = c
		o.trainTask = train
		o.evalTask = eval
	}
}

// Online is an Experiment that trains an agent online on a vectorized
// pool of environments and periodically evaluates it greedily on a
// second pool.
type Online struct {
	agent    agent.Agent
	train    *vecenv.Manager
	eval     *vecenv.Manager
	settings Settings

	curriculum *curriculum.Controller
	trainTask  envconfig.Task
	evalTask   envconfig.Task

	trackers      []tracker.Tracker
	checkpointers []checkpointer.Checkpointer
	metrics       *Metrics
	progressOut   io.Writer
	progress      *progressbar.ProgressBar

	obs       []timestep.Observation
	summaries []Summary
}

// NewOnline creates and returns a new online experiment. The eval
// manager may be nil if evaluation is disabled.
func NewOnline(a agent.Agent, train, eval *vecenv.Manager, s Settings,
	opts ...Option) (*Online, error) {
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "newOnline")
	}
	if a == nil || train == nil {
		return nil, errors.New("newOnline: agent and training environments " +
			"must be set")
	}
	if s.EvalInterval > 0 && eval == nil {
		return nil, errors.New("newOnline: evaluation needs environments")
	}

	o := &Online{agent: a, train: train, eval: eval, settings: s}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Register registers a tracker.Tracker with the experiment so that
// data generated during training is tracked and saved
func (o *Online) Register(t tracker.Tracker) {
	o.trackers = append(o.trackers, t)
}

// Summaries returns the summaries of every evaluation run so far
func (o *Online) Summaries() []Summary {
	return append([]Summary(nil), o.summaries...)
}

// Run trains the agent until it has taken MaxSteps optimizer steps or
// ctx is cancelled
func (o *Online) Run(ctx context.Context) error {
	if err := o.start(ctx); err != nil {
		return errors.Wrap(err, "run")
	}
	if o.progressOut != nil {
		o.progress = progressbar.New(o.progressOut, 50, o.settings.MaxSteps)
		o.progress.Set(o.agent.Steps())
		defer o.progress.Close()
	}

	for o.agent.Steps() < o.settings.MaxSteps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.collect(ctx); err != nil {
			return errors.Wrap(err, "run")
		}
		if !o.agent.Ready() {
			continue
		}
		if err := o.update(ctx); err != nil {
			return errors.Wrap(err, "run")
		}
	}
	return nil
}

// start resets the training environments and the agent's memory
func (o *Online) start(ctx context.Context) error {
	steps, err := o.train.ResetAll(ctx)
	if err != nil {
		return err
	}
	o.obs = observations(steps)
	o.agent.Train()
	if err := o.agent.ResetState(o.train.NumEnvs()); err != nil {
		return err
	}
	if o.curriculum != nil && o.metrics != nil {
		o.metrics.RecordLevel(o.curriculum.Level())
	}
	return nil
}

// collect takes one step in every training environment
func (o *Online) collect(ctx context.Context) error {
	actions, err := o.agent.Act(o.obs)
	if err != nil {
		return err
	}
	results, err := o.train.Step(ctx, actions)
	if err != nil {
		return err
	}

	for _, t := range o.trackers {
		t.Track(results)
	}
	if o.metrics != nil {
		o.metrics.RecordEpisodes(modeTrain, finished(results))
	}

	if err := o.agent.Observe(results); err != nil {
		return err
	}
	// The agent may keep the previous slice in its rollout
	o.obs = make([]timestep.Observation, len(results))
	for i, r := range results {
		o.obs[i] = r.Observation
	}
	return nil
}

// update takes one optimizer step and runs whatever is scheduled after
// it
func (o *Online) update(ctx context.Context) error {
	start := time.Now()
	stats, err := o.agent.Step()
	if err != nil {
		return err
	}
	step := o.agent.Steps()
	if o.metrics != nil {
		o.metrics.RecordUpdate(stats, time.Since(start).Seconds())
	}
	klog.V(2).Infof("step %d: loss %.5f, mean reward %.5f", step, stats.Loss,
		stats.MeanReward)
	if o.progress != nil {
		o.progress.Set(step)
		o.progress.Display()
	}

	if o.settings.EvalInterval > 0 && step%o.settings.EvalInterval == 0 {
		summary, err := o.Evaluate(ctx)
		if err != nil {
			return err
		}
		if o.curriculum != nil && o.curriculum.Observe(summary.MeanReward) {
			if err := o.changeLevel(ctx); err != nil {
				return err
			}
		}
	}

	for _, c := range o.checkpointers {
		if err := c.Checkpoint(step); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate runs EvalEpisodes episodes of the evaluation environments
// with the greedy policy. The training mode and memory of the agent
// are restored afterwards.
func (o *Online) Evaluate(ctx context.Context) (Summary, error) {
	if o.eval == nil {
		return Summary{}, errors.New("evaluate: no evaluation environments")
	}
	saved := o.agent.State()
	wasEval := o.agent.IsEval()
	defer func() {
		if err := o.agent.SetState(saved); err != nil {
			klog.Errorf("evaluate: could not restore agent state: %v", err)
		}
		if !wasEval {
			o.agent.Train()
		}
	}()

	o.agent.Eval()
	if err := o.agent.ResetState(o.eval.NumEnvs()); err != nil {
		return Summary{}, errors.Wrap(err, "evaluate")
	}
	steps, err := o.eval.ResetAll(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "evaluate")
	}
	obs := observations(steps)

	current := make([]float64, o.eval.NumEnvs())
	var returns, lengths []float64
	for len(returns) < o.settings.EvalEpisodes {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		actions, err := o.agent.Act(obs)
		if err != nil {
			return Summary{}, errors.Wrap(err, "evaluate")
		}
		results, err := o.eval.Step(ctx, actions)
		if err != nil {
			return Summary{}, errors.Wrap(err, "evaluate")
		}
		if err := o.agent.Observe(results); err != nil {
			return Summary{}, errors.Wrap(err, "evaluate")
		}

		for i, r := range results {
			obs[i] = r.Observation
			current[i] += r.Reward
			if r.Done && len(returns) < o.settings.EvalEpisodes {
				returns = append(returns, current[i])
				lengths = append(lengths, float64(r.Number))
			}
			if r.Done {
				current[i] = 0
			}
		}
	}

	summary := Summary{
		MeanReward:        stat.Mean(returns, nil),
		MeanEpisodeLength: stat.Mean(lengths, nil),
		Episodes:          len(returns),
	}
	o.summaries = append(o.summaries, summary)
	if o.metrics != nil {
		o.metrics.RecordEval(summary)
		o.metrics.RecordEpisodes(modeEval, summary.Episodes)
	}
	klog.V(1).Infof("evaluation after %d steps: mean reward %.4f, mean "+
		"episode length %.2f over %d episodes", o.agent.Steps(),
		summary.MeanReward, summary.MeanEpisodeLength, summary.Episodes)
	if o.progress != nil {
		o.progress.SetLabel(fmt.Sprintf("eval reward %.3f", summary.MeanReward))
	}
	return summary, nil
}

// changeLevel rebuilds the environments on the molecule of the current
// curriculum level. The training memory starts over at the width of
// the new pool.
func (o *Online) changeLevel(ctx context.Context) error {
	mol := o.curriculum.CurrentConfig()
	envs, evalEnvs, err := createPools(ctx, o.trainTask, o.evalTask, mol,
		o.eval != nil)
	if err != nil {
		return errors.Wrapf(err, "changeLevel: level %d",
			o.curriculum.Level())
	}

	steps, err := o.train.Replace(ctx, envs)
	if err != nil {
		return errors.Wrap(err, "changeLevel")
	}
	o.obs = observations(steps)
	if err := o.agent.ResetState(o.train.NumEnvs()); err != nil {
		return errors.Wrap(err, "changeLevel")
	}
	if o.eval != nil {
		if _, err := o.eval.Replace(ctx, evalEnvs); err != nil {
			return errors.Wrap(err, "changeLevel")
		}
	}

	if o.metrics != nil {
		o.metrics.RecordLevel(o.curriculum.Level())
	}
	klog.Infof("curriculum level %d: training on %v", o.curriculum.Level(),
		mol.Name)
	return nil
}

// Save saves all the data cached by the Trackers to disk
func (o *Online) Save() error {
	for _, t := range o.trackers {
		if err := t.Save(); err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return nil
}

func observations(steps []timestep.TimeStep) []timestep.Observation {
	obs := make([]timestep.Observation, len(steps))
	for i, s := range steps {
		obs[i] = s.Observation
	}
	return obs
}

func finished(results []vecenv.Result) int {
	n := 0
	for _, r := range results {
		if r.Done {
			n++
		}
	}
	return n
}
