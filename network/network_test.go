package network

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/conformerrl/graphbatch"
	"github.com/samuelfneumann/conformerrl/timestep"
)

const (
	testNodeDim = 3
	testEdgeDim = 2
)

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

func testConfig() Config {
	return Config{
		NodeDim:   testNodeDim,
		EdgeDim:   testEdgeDim,
		Hidden:    8,
		Rounds:    2,
		PoolSteps: 2,
		Bins:      4,
	}
}

func testBatch(t *testing.T, sizes ...int) *graphbatch.Batched {
	obs := make([]timestep.Observation, len(sizes))
	for i, n := range sizes {
		obs[i] = chain(n)
	}
	b, _, _, err := graphbatch.Batch(obs)
	require.NoError(t, err)
	return b
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	c := testConfig()
	c.Hidden = 0
	assert.Error(t, c.Validate())

	c = testConfig()
	c.Rounds = 0
	assert.Error(t, c.Validate())

	_, err := NewActor(Config{NodeDim: 3, EdgeDim: 2, Hidden: 4, Rounds: 1,
		PoolSteps: 1, Bins: 1}, G.GlorotU(1))
	assert.Error(t, err)
}

func TestForwardShapes(t *testing.T) {
	cfg := testConfig()
	actor, err := NewActor(cfg, G.GlorotU(1))
	require.NoError(t, err)
	critic, err := NewCritic(cfg, G.GlorotU(1))
	require.NoError(t, err)

	batch := testBatch(t, 5, 4, 7)
	width := batch.NumGraphs()
	state := NewAgentState(width, actor.Hidden(), critic.Hidden())

	g := G.NewGraph()
	b := NewBinder(g, actor.Params(), critic.Params())
	in, err := NewInputs(b, batch)
	require.NoError(t, err)

	logits, actorNext, err := actor.Fwd(b, in, state.Actor.Nodes(b, "actor"))
	require.NoError(t, err)
	values, criticNext, err := critic.Fwd(b, in,
		state.Critic.Nodes(b, "critic"))
	require.NoError(t, err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	assert.Equal(t, []int{batch.NumTorsions(), cfg.Bins},
		[]int(logits.Shape()))
	assert.Equal(t, []int{width}, []int(values.Shape()))

	for _, v := range values.Value().Data().([]float64) {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	next, err := actorNext.Value()
	require.NoError(t, err)
	require.NoError(t, next.Check(width, cfg.Hidden))
	next, err = criticNext.Value()
	require.NoError(t, err)
	require.NoError(t, next.Check(width, cfg.Hidden))

	// The memory moves away from zero after a step
	nonZero := false
	for _, v := range next.H.Data().([]float64) {
		if v != 0 {
			nonZero = true
		}
	}
	assert.True(t, nonZero)

	padded, mask, err := PadLogits(logits.Value().(*tensor.Dense),
		batch.TorsionCounts)
	require.NoError(t, err)
	assert.Equal(t, []int{width, 4, cfg.Bins}, []int(padded.Shape()))
	assert.Equal(t, []bool{true, true, false, false}, mask[0])
	assert.Equal(t, []bool{true, false, false, false}, mask[1])
	assert.Equal(t, []bool{true, true, true, true}, mask[2])
}

func TestForwardStateShapeMismatch(t *testing.T) {
	critic, err := NewCritic(testConfig(), G.GlorotU(1))
	require.NoError(t, err)

	batch := testBatch(t, 5, 4)
	g := G.NewGraph()
	b := NewBinder(g, critic.Params())
	in, err := NewInputs(b, batch)
	require.NoError(t, err)

	wrong := NewRecurrentState(3, critic.Hidden())
	_, _, err = critic.Fwd(b, in, wrong.Nodes(b, "critic"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStateShape))
}

func TestInputsRequireTorsions(t *testing.T) {
	batch := testBatch(t, 5, 3)
	b := NewBinder(G.NewGraph())
	_, err := NewInputs(b, batch)
	assert.Error(t, err)
}

func TestGradientStep(t *testing.T) {
	critic, err := NewCritic(testConfig(), G.GlorotU(1))
	require.NoError(t, err)
	before := critic.Params().Clone()

	batch := testBatch(t, 5, 6)
	state := NewRecurrentState(batch.NumGraphs(), critic.Hidden())

	g := G.NewGraph()
	b := NewBinder(g, critic.Params())
	in, err := NewInputs(b, batch)
	require.NoError(t, err)
	values, _, err := critic.Fwd(b, in, state.Nodes(b, "critic"))
	require.NoError(t, err)

	loss := G.Must(G.Mean(G.Must(G.Square(values))))
	_, err = G.Grad(loss, b.Learnables()...)
	require.NoError(t, err)

	vm := G.NewTapeMachine(g, G.BindDualValues(b.Learnables()...))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	solver := G.NewVanillaSolver(G.WithLearnRate(0.1))
	require.NoError(t, solver.Step(b.Model()))
	b.WriteBack()

	changed := false
	for _, name := range critic.Params().Names() {
		a := before.Get(name).Data().([]float64)
		c := critic.Params().Get(name).Data().([]float64)
		for i := range a {
			if a[i] != c[i] {
				changed = true
			}
		}
	}
	assert.True(t, changed)
}

func TestRecurrentStateResetSlots(t *testing.T) {
	s := NewRecurrentState(3, 2)
	for _, d := range [][]float64{s.H.Data().([]float64),
		s.C.Data().([]float64)} {
		for i := range d {
			d[i] = 1
		}
	}

	require.NoError(t, s.ResetSlots([]bool{false, true, false}))
	assert.Equal(t, []float64{1, 1, 0, 0, 1, 1}, s.H.Data())
	assert.Equal(t, []float64{1, 1, 0, 0, 1, 1}, s.C.Data())

	err := s.ResetSlots([]bool{true})
	assert.True(t, errors.Is(err, ErrStateShape))

	assert.True(t, errors.Is(s.Check(4, 2), ErrStateShape))
	assert.True(t, errors.Is(s.Check(3, 5), ErrStateShape))
	assert.NoError(t, s.Check(3, 2))

	clone := s.Clone()
	clone.H.Data().([]float64)[0] = 7
	assert.Equal(t, 1.0, s.H.Data().([]float64)[0])
}

func TestAgentStateResetSlots(t *testing.T) {
	s := NewAgentState(2, 3, 4)
	s.Critic.C.Data().([]float64)[5] = 2
	require.NoError(t, s.ResetSlots([]bool{false, true}))
	assert.Equal(t, 0.0, s.Critic.C.Data().([]float64)[5])
	assert.Equal(t, 2, s.Width())
}

func TestParamsGobRoundTrip(t *testing.T) {
	actor, err := NewActor(testConfig(), G.GlorotU(1))
	require.NoError(t, err)
	p := actor.Params()

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(p))

	decoded := NewParams()
	require.NoError(t, gob.NewDecoder(&buf).Decode(decoded))
	require.Equal(t, p.Names(), decoded.Names())
	for _, name := range p.Names() {
		assert.Equal(t, p.Get(name).Data(), decoded.Get(name).Data())
		assert.Equal(t, p.Get(name).Shape(), decoded.Get(name).Shape())
	}

	// A freshly initialized actor takes the decoded weights
	other, err := NewActor(testConfig(), G.GlorotU(1))
	require.NoError(t, err)
	require.NoError(t, other.Params().Set(decoded))
	for _, name := range p.Names() {
		assert.Equal(t, p.Get(name).Data(), other.Params().Get(name).Data())
	}
}

func TestParamsSetRejectsMismatch(t *testing.T) {
	a := NewParams()
	a.Add("w", G.Zeroes(), 2, 2)
	b := NewParams()
	b.Add("w", G.Zeroes(), 3, 2)
	assert.Error(t, a.Set(b))

	c := NewParams()
	c.Add("v", G.Zeroes(), 2, 2)
	assert.Error(t, a.Set(c))

	assert.Panics(t, func() { a.Add("w", G.Zeroes(), 1) })
	assert.Panics(t, func() { a.Get("missing") })
}

func TestPadLogitsErrors(t *testing.T) {
	logits := tensor.New(tensor.WithShape(3, 2),
		tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6}))
	_, _, err := PadLogits(logits, []int{1, 1})
	assert.Error(t, err)

	padded, mask, err := PadLogits(logits, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 0, 0, 3, 4, 5, 6}, padded.Data())
	assert.Equal(t, [][]bool{{true, false}, {true, true}}, mask)
}
