package experiment

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/environment"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/checkpointer"
	"github.com/samuelfneumann/conformerrl/experiment/trackers"
	"github.com/samuelfneumann/conformerrl/network"
	"github.com/samuelfneumann/conformerrl/timestep"
)

// budgetEnv rewards every step with the first action entry and ends
// its episodes after budget steps
type budgetEnv struct {
	budget int
	step   int
	state  environment.State
}

func (b *budgetEnv) obs() timestep.Observation {
	return timestep.Observation{
		Nodes:    [][]float64{{float64(b.step)}},
		Torsions: [][4]int{{0, 0, 0, 0}},
	}
}

func (b *budgetEnv) Reset(context.Context) (timestep.TimeStep, error) {
	b.step = 0
	b.state = environment.Ready
	return timestep.New(timestep.First, 0, 1, b.obs(), 0), nil
}

func (b *budgetEnv) Step(_ context.Context, a mat.Vector) (timestep.TimeStep,
	bool, error) {
	if err := b.ValidateAction(a); err != nil {
		return timestep.TimeStep{}, false, err
	}
	b.step++
	ts := timestep.New(timestep.Mid, a.AtVec(0), 1, b.obs(), b.step)
	done := environment.NewStepLimit(b.budget).End(&ts)
	if done {
		b.state = environment.Done
	} else {
		b.state = environment.Stepping
	}
	return ts, done, nil
}

func (b *budgetEnv) Observation() (timestep.Observation, error) {
	return b.obs(), nil
}

func (b *budgetEnv) ValidateAction(mat.Vector) error {
	if b.state != environment.Ready && b.state != environment.Stepping {
		return environment.ErrSequencing
	}
	return nil
}

func (b *budgetEnv) FeatureDims() (int, int) { return 1, 0 }

func (b *budgetEnv) ActionSpec() environment.Spec {
	return environment.DiscreteAction{Bins: 2}.Spec(1)
}

func (b *budgetEnv) State() environment.State { return b.state }

func manager(t *testing.T, budget, n int) *vecenv.Manager {
	t.Helper()
	envs := make([]environment.Environment, n)
	for i := range envs {
		envs[i] = &budgetEnv{budget: budget}
	}
	m, err := vecenv.New(envs, false, 0)
	require.NoError(t, err)
	return m
}

// fakeAgent always takes action 1 and is ready to update after rollout
// training steps
type fakeAgent struct {
	rollout   int
	collected int
	steps     int
	width     int
	eval      bool
	evalActs  int
	widths    []int
}

func (f *fakeAgent) Act(obs []timestep.Observation) ([]mat.Vector, error) {
	if len(obs) != f.width {
		return nil, network.ErrStateShape
	}
	if f.eval {
		f.evalActs++
	}
	out := make([]mat.Vector, len(obs))
	for i := range out {
		out[i] = mat.NewVecDense(1, []float64{1})
	}
	return out, nil
}

func (f *fakeAgent) Observe(results []vecenv.Result) error {
	if len(results) != f.width {
		return network.ErrStateShape
	}
	if !f.eval {
		f.collected++
	}
	return nil
}

func (f *fakeAgent) Ready() bool { return !f.eval && f.collected >= f.rollout }

func (f *fakeAgent) Step() (agent.Stats, error) {
	if !f.Ready() {
		return agent.Stats{}, errors.New("not ready")
	}
	f.collected = 0
	f.steps++
	return agent.Stats{Loss: 1, PolicyLoss: 2, ValueLoss: 3, MeanReward: 1}, nil
}

func (f *fakeAgent) Steps() int { return f.steps }

func (f *fakeAgent) State() network.AgentState {
	return network.NewAgentState(f.width, 2, 2)
}

func (f *fakeAgent) SetState(s network.AgentState) error {
	f.width = s.Width()
	return nil
}

func (f *fakeAgent) ResetState(width int) error {
	f.width = width
	f.widths = append(f.widths, width)
	return nil
}

func (f *fakeAgent) Eval()        { f.eval = true }
func (f *fakeAgent) Train()       { f.eval = false }
func (f *fakeAgent) IsEval() bool { return f.eval }

func (f *fakeAgent) Save(w io.Writer) error {
	_, err := w.Write([]byte("agent"))
	return err
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, Settings{MaxSteps: 1}.Validate())
	assert.Error(t, Settings{}.Validate())
	assert.Error(t, Settings{MaxSteps: 1, EvalInterval: -1}.Validate())
	assert.Error(t, Settings{MaxSteps: 1, EvalInterval: 1}.Validate())

	_, err := NewOnline(&fakeAgent{}, manager(t, 3, 1), nil,
		Settings{MaxSteps: 1, EvalInterval: 1, EvalEpisodes: 1})
	assert.Error(t, err)
}

func TestRunTracksEpisodes(t *testing.T) {
	a := &fakeAgent{rollout: 2}
	ret := trackers.NewReturn(filepath.Join(t.TempDir(), "return.gob"))
	length := trackers.NewEpisodeLength(filepath.Join(t.TempDir(),
		"length.gob"))

	o, err := NewOnline(a, manager(t, 3, 2), nil, Settings{MaxSteps: 4},
		WithTrackers(ret, length))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	// 4 updates of 2 steps each are 8 steps per slot, or 2 full
	// episodes of 3 steps
	assert.Equal(t, 4, a.Steps())
	assert.Equal(t, []float64{3, 3, 3, 3}, ret.Returns())
	assert.Equal(t, []int{3, 3, 3, 3}, length.Lengths())
	require.NoError(t, o.Save())
}

func TestRunEvaluates(t *testing.T) {
	a := &fakeAgent{rollout: 1}
	o, err := NewOnline(a, manager(t, 5, 2), manager(t, 2, 3),
		Settings{MaxSteps: 4, EvalInterval: 2, EvalEpisodes: 4})
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	summaries := o.Summaries()
	require.Len(t, summaries, 2)
	for _, s := range summaries {
		assert.Equal(t, Summary{MeanReward: 2, MeanEpisodeLength: 2,
			Episodes: 4}, s)
	}

	// Two rounds of 3 parallel episodes reach 4 episodes
	assert.Equal(t, 8, a.evalActs)
	assert.False(t, a.IsEval())
	assert.Equal(t, 2, a.width)
	assert.Equal(t, []int{2, 3, 3}, a.widths)
}

func TestRunCheckpointsAndRecordsMetrics(t *testing.T) {
	a := &fakeAgent{rollout: 1}
	dir := t.TempDir()
	check, err := checkpointer.NewNStep(2, a, checkpointer.FilenameEnumerator(0,
		filepath.Join(dir, "checkpoints", "agent"), "gob"))
	require.NoError(t, err)

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	o, err := NewOnline(a, manager(t, 2, 1), manager(t, 2, 1),
		Settings{MaxSteps: 4, EvalInterval: 4, EvalEpisodes: 1},
		WithCheckpointers(check), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, o.Run(context.Background()))

	for _, name := range []string{"agent-1.gob", "agent-2.gob"} {
		data, err := os.ReadFile(filepath.Join(dir, "checkpoints", name))
		require.NoError(t, err)
		assert.Equal(t, "agent", string(data))
	}
	_, err = os.Stat(filepath.Join(dir, "checkpoints", "agent-3.gob"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.optimizerSteps))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.loss.WithLabelValues(termPolicy)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.episodes.WithLabelValues(modeTrain)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.episodes.WithLabelValues(modeEval)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evalReward))
}

func TestMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestRunHonoursCancellation(t *testing.T) {
	a := &fakeAgent{rollout: 1}
	o, err := NewOnline(a, manager(t, 3, 1), nil, Settings{MaxSteps: 10})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = o.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, a.Steps())
}
