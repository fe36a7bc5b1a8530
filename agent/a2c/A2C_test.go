package a2c

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/environment/envconfig"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/initwfn"
	"github.com/samuelfneumann/conformerrl/molecule"
	"github.com/samuelfneumann/conformerrl/network"
	"github.com/samuelfneumann/conformerrl/solver"
	"github.com/samuelfneumann/conformerrl/timestep"
)

const testBins = 4

func chain(n int) timestep.Observation {
	obs := timestep.Observation{}
	for i := 0; i < n; i++ {
		obs.Nodes = append(obs.Nodes, []float64{float64(i) / 4, 0.5, 1})
	}
	for i := 0; i+1 < n; i++ {
		obs.Edges = append(obs.Edges, [2]int{i, i + 1})
		obs.EdgeFeatures = append(obs.EdgeFeatures, []float64{1, 0.1 * float64(i)})
	}
	for i := 0; i+3 < n; i++ {
		obs.Torsions = append(obs.Torsions, [4]int{i, i + 1, i + 2, i + 3})
	}
	return obs
}

func testConfig(t *testing.T) Config {
	init, err := initwfn.NewGlorotU(1)
	require.NoError(t, err)
	s, err := solver.NewAdam(1e-2, 1e-5, 0.9, 0.999, 1, 5)
	require.NoError(t, err)
	return Config{
		RolloutLength: 2,
		Gamma:         0.9,
		Lambda:        1,
		ValueCoef:     0.25,
		EntropyCoef:   0.01,
		Hidden:        8,
		Rounds:        2,
		PoolSteps:     2,
		Init:          init,
		Solver:        s,
	}
}

func newAgent(t *testing.T, width int) *A2C {
	a, err := New(testConfig(t), Dims{NodeDim: 3, EdgeDim: 2,
		Bins: testBins}, width, 1)
	require.NoError(t, err)
	return a
}

func results(obs []timestep.Observation, rewards []float64,
	dones []bool) []vecenv.Result {
	out := make([]vecenv.Result, len(obs))
	for i := range out {
		ts := timestep.New(timestep.Mid, rewards[i], 0.9, obs[i], 1)
		out[i] = vecenv.Result{TimeStep: ts, Done: dones[i]}
	}
	return out
}

func copyParams(p *network.Params) map[string][]float64 {
	out := make(map[string][]float64)
	for _, name := range p.Names() {
		out[name] = append([]float64(nil), p.Get(name).Data().([]float64)...)
	}
	return out
}

func TestActShapes(t *testing.T) {
	a := newAgent(t, 2)
	obs := []timestep.Observation{chain(5), chain(7)}

	actions, err := a.Act(obs)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, 2, actions[0].Len())
	assert.Equal(t, 4, actions[1].Len())
	for _, act := range actions {
		for i := 0; i < act.Len(); i++ {
			bin := act.AtVec(i)
			assert.Equal(t, math.Trunc(bin), bin)
			assert.GreaterOrEqual(t, bin, 0.0)
			assert.Less(t, bin, float64(testBins))
		}
	}

	// Actions must be observed before acting again in training mode
	_, err = a.Act(obs)
	assert.Error(t, err)
}

func TestActRejectsWrongWidth(t *testing.T) {
	a := newAgent(t, 2)
	_, err := a.Act([]timestep.Observation{chain(5)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, network.ErrStateShape))

	err = a.Observe(results([]timestep.Observation{chain(5)}, []float64{1},
		[]bool{false}))
	assert.True(t, errors.Is(err, network.ErrStateShape))
}

func TestObserveResetsDoneSlots(t *testing.T) {
	a := newAgent(t, 2)
	obs := []timestep.Observation{chain(5), chain(6)}

	_, err := a.Act(obs)
	require.NoError(t, err)
	require.NoError(t, a.Observe(results(obs, []float64{1, 1},
		[]bool{false, true})))

	s := a.State()
	hidden := a.Actor().Hidden()
	h := s.Actor.H.Data().([]float64)
	for _, v := range h[hidden:] {
		assert.Equal(t, 0.0, v)
	}
	nonZero := false
	for _, v := range h[:hidden] {
		if v != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero)
	for _, v := range s.Critic.C.Data().([]float64)[hidden:] {
		assert.Equal(t, 0.0, v)
	}
}

func TestStepClearsBufferAndKeepsState(t *testing.T) {
	a := newAgent(t, 2)
	before := copyParams(a.Actor().Params())
	obs := []timestep.Observation{chain(5), chain(6)}

	_, err := a.Step()
	assert.Error(t, err)

	for i := 0; i < 2; i++ {
		assert.False(t, a.Ready())
		_, err := a.Act(obs)
		require.NoError(t, err)
		require.NoError(t, a.Observe(results(obs, []float64{1, 0.5},
			[]bool{false, i == 0})))
	}
	require.True(t, a.Ready())

	state := a.State()
	stats, err := a.Step()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(stats.Loss))
	assert.InDelta(t, 0.75, stats.MeanReward, 1e-12)
	assert.Equal(t, 1, a.Steps())

	assert.False(t, a.Ready())
	assert.Equal(t, 0, a.buffer.Len())
	assert.Nil(t, a.snapshot)

	// The recurrent state is plain tensors, unchanged by the update
	after := a.State()
	assert.IsType(t, &tensor.Dense{}, after.Actor.H)
	assert.Equal(t, state.Actor.H.Data(), after.Actor.H.Data())
	assert.Equal(t, state.Critic.C.Data(), after.Critic.C.Data())

	changed := false
	for name, w := range before {
		current := a.Actor().Params().Get(name).Data().([]float64)
		for i := range w {
			if w[i] != current[i] {
				changed = true
			}
		}
	}
	assert.True(t, changed)

	// Collection continues after the update
	_, err = a.Act(obs)
	require.NoError(t, err)
}

func TestStepDiverged(t *testing.T) {
	a := newAgent(t, 1)
	obs := []timestep.Observation{chain(5)}
	for i := 0; i < 2; i++ {
		_, err := a.Act(obs)
		require.NoError(t, err)
		require.NoError(t, a.Observe(results(obs, []float64{1},
			[]bool{false})))
	}

	names := a.Critic().Params().Names()
	a.Critic().Params().Get(names[0]).Data().([]float64)[0] = math.NaN()
	before := copyParams(a.Actor().Params())

	_, err := a.Step()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDiverged))
	assert.Equal(t, 0, a.Steps())
	assert.Equal(t, before, copyParams(a.Actor().Params()))
	assert.Equal(t, 0, a.buffer.Len())
}

func TestEvalDoesNotRecord(t *testing.T) {
	a := newAgent(t, 2)
	obs := []timestep.Observation{chain(5), chain(6)}

	a.Eval()
	assert.True(t, a.IsEval())
	first, err := a.Act(obs)
	require.NoError(t, err)
	require.NoError(t, a.Observe(results(obs, []float64{1, 1},
		[]bool{true, true})))
	assert.Equal(t, 0, a.buffer.Len())

	// Greedy actions are deterministic for the same state
	require.NoError(t, a.ResetState(2))
	second, err := a.Act(obs)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}

	a.Train()
	assert.False(t, a.IsEval())
}

func TestResetAndSetState(t *testing.T) {
	a := newAgent(t, 2)
	require.NoError(t, a.ResetState(3))
	assert.Equal(t, 3, a.Width())

	_, err := a.Act([]timestep.Observation{chain(5), chain(6), chain(4)})
	require.NoError(t, err)

	wrong := network.NewAgentState(3, 5, a.Critic().Hidden())
	err = a.SetState(wrong)
	assert.True(t, errors.Is(err, network.ErrStateShape))

	good := network.NewAgentState(1, a.Actor().Hidden(), a.Critic().Hidden())
	require.NoError(t, a.SetState(good))
	assert.Equal(t, 1, a.Width())
	assert.Equal(t, 1, a.buffer.Width())
}

func TestSaveLoad(t *testing.T) {
	a := newAgent(t, 1)
	obs := []timestep.Observation{chain(5)}
	for i := 0; i < 2; i++ {
		_, err := a.Act(obs)
		require.NoError(t, err)
		require.NoError(t, a.Observe(results(obs, []float64{1},
			[]bool{false})))
	}
	_, err := a.Step()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.Save(&buf))

	loaded, err := Load(&buf, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Steps())
	assert.Equal(t, 3, loaded.Width())
	assert.Equal(t, copyParams(a.Actor().Params()),
		copyParams(loaded.Actor().Params()))
	assert.Equal(t, copyParams(a.Critic().Params()),
		copyParams(loaded.Critic().Params()))
	assert.Equal(t, a.config.Solver.Config, loaded.config.Solver.Config)
	assert.Equal(t, a.config.Init.Type, loaded.config.Init.Type)

	// Training resumes with a fresh solver of the saved configuration
	assert.NotSame(t, a.solver.Solver, loaded.solver.Solver)
	require.NoError(t, loaded.ResetState(1))
	for i := 0; i < 2; i++ {
		_, err := loaded.Act(obs)
		require.NoError(t, err)
		require.NoError(t, loaded.Observe(results(obs, []float64{1},
			[]bool{false})))
	}
	_, err = loaded.Step()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Steps())
}

func TestConfigValidate(t *testing.T) {
	c := testConfig(t)
	require.NoError(t, c.Validate())

	bad := c
	bad.RolloutLength = 0
	assert.Error(t, bad.Validate())

	bad = c
	bad.Gamma = 1.5
	assert.Error(t, bad.Validate())

	bad = c
	bad.Solver = nil
	assert.Error(t, bad.Validate())

	def, err := DefaultConfig()
	require.NoError(t, err)
	assert.NoError(t, def.Validate())
}

func TestTypedConfigRoundTrip(t *testing.T) {
	typed := agent.NewTypedConfig(testConfig(t))
	data, err := json.Marshal(typed)
	require.NoError(t, err)

	var decoded agent.TypedConfig
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, agent.A2CGNN, decoded.Type)
	c, ok := decoded.Config.(Config)
	require.True(t, ok)
	assert.Equal(t, 2, c.RolloutLength)
	assert.Equal(t, solver.Adam, c.Solver.Type)
}

func TestCreateAgentFromManager(t *testing.T) {
	mol, err := molecule.Alkane(5)
	require.NoError(t, err)
	task := envconfig.DefaultTask(envconfig.GibbsEnv).
		WithMolecule(mol.WithStandardEnergy(0))
	task.NumEnvs = 2
	task.MaxSteps = 2

	ctx := context.Background()
	m, err := task.CreateManager(ctx)
	require.NoError(t, err)

	// The agent is built before the environments have been reset
	ag, err := testConfig(t).CreateAgent(m, 3)
	require.NoError(t, err)
	a := ag.(*A2C)
	assert.Equal(t, 6, a.dims.Bins)
	assert.Equal(t, 2, a.Width())

	_, err = m.ResetAll(ctx)
	require.NoError(t, err)
	obs, err := m.Observations()
	require.NoError(t, err)
	assert.Equal(t, obs[0].NodeDim(), a.dims.NodeDim)
	assert.Equal(t, obs[0].EdgeDim(), a.dims.EdgeDim)
	actions, err := a.Act(obs)
	require.NoError(t, err)
	res, err := m.Step(ctx, actions)
	require.NoError(t, err)
	require.NoError(t, a.Observe(res))
}
