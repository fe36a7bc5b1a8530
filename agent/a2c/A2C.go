// Package a2c implements a synchronous advantage actor-critic agent
// with recurrent graph neural network actors and critics.
//
// The agent acts in a batch of environments stepped in lockstep. Each
// environment slot carries its own recurrent state between steps,
// zeroed when the slot's episode ends. After RolloutLength steps the
// agent rebuilds one expression graph over the whole rollout, starting
// from the recurrent state before the first step, and takes a single
// gradient step on
//
//	loss = -mean(log π(a|s) A) + c_v mean((R - V(s))²) - c_e mean(H(π(s)))
package a2c

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/buffer/rollout"
	"github.com/samuelfneumann/conformerrl/distribution"
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/graphbatch"
	"github.com/samuelfneumann/conformerrl/network"
	"github.com/samuelfneumann/conformerrl/solver"
	"github.com/samuelfneumann/conformerrl/timestep"
	"github.com/samuelfneumann/conformerrl/utils/op"
)

// ErrDiverged is returned by Step when the loss is not finite. The
// gradient is not applied.
var ErrDiverged = errors.New("a2c: loss diverged")

// pending is the record of an Act call waiting for its results
type pending struct {
	observations []timestep.Observation
	actions      [][]int
	values       []float64
}

// A2C implements the synchronous advantage actor-critic algorithm
type A2C struct {
	config Config
	dims   Dims

	actor  *network.Actor
	critic *network.Critic
	solver *solver.Solver

	state    network.AgentState
	snapshot *network.AgentState // State before the first rollout step
	buffer   *rollout.Buffer
	pending  *pending
	lastObs  []timestep.Observation

	rng   rand.Source
	eval  bool
	steps int
}

// New returns a new A2C agent for width environment slots
func New(c Config, dims Dims, width int, seed uint64) (*A2C, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "new")
	}
	netConfig := network.Config{
		NodeDim:   dims.NodeDim,
		EdgeDim:   dims.EdgeDim,
		Hidden:    c.Hidden,
		Rounds:    c.Rounds,
		PoolSteps: c.PoolSteps,
		Bins:      dims.Bins,
	}

	actor, err := network.NewActor(netConfig, c.Init.InitWFn())
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	critic, err := network.NewCritic(netConfig, c.Init.InitWFn())
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}
	buf, err := rollout.New(width, c.RolloutLength)
	if err != nil {
		return nil, errors.Wrap(err, "new")
	}

	return &A2C{
		config: c,
		dims:   dims,
		actor:  actor,
		critic: critic,
		solver: c.Solver.Clone(),
		state:  network.NewAgentState(width, actor.Hidden(), critic.Hidden()),
		buffer: buf,
		rng:    rand.NewSource(seed),
	}, nil
}

// Actor returns the policy network
func (a *A2C) Actor() *network.Actor { return a.actor }

// Critic returns the value network
func (a *A2C) Critic() *network.Critic { return a.critic }

// Width returns the number of environment slots the agent acts in
func (a *A2C) Width() int { return a.state.Width() }

// Steps implements the agent.Learner interface
func (a *A2C) Steps() int { return a.steps }

// Eval implements the agent.Policy interface
func (a *A2C) Eval() {
	a.eval = true
	a.pending = nil
}

// Train implements the agent.Policy interface
func (a *A2C) Train() { a.eval = false }

// IsEval implements the agent.Policy interface
func (a *A2C) IsEval() bool { return a.eval }

// State implements the agent.Policy interface
func (a *A2C) State() network.AgentState { return a.state.Clone() }

// SetState implements the agent.Policy interface. Experience collected
// with a state of a different width is discarded.
func (a *A2C) SetState(s network.AgentState) error {
	width := s.Width()
	if err := s.Actor.Check(width, a.actor.Hidden()); err != nil {
		return errors.Wrap(err, "setState: actor")
	}
	if err := s.Critic.Check(width, a.critic.Hidden()); err != nil {
		return errors.Wrap(err, "setState: critic")
	}
	if width != a.Width() {
		if err := a.resize(width); err != nil {
			return errors.Wrap(err, "setState")
		}
	}
	a.state = s.Clone()
	return nil
}

// ResetState implements the agent.Policy interface
func (a *A2C) ResetState(width int) error {
	if err := a.resize(width); err != nil {
		return errors.Wrap(err, "resetState")
	}
	a.state = network.NewAgentState(width, a.actor.Hidden(), a.critic.Hidden())
	return nil
}

func (a *A2C) resize(width int) error {
	buf, err := rollout.New(width, a.config.RolloutLength)
	if err != nil {
		return err
	}
	a.buffer = buf
	a.snapshot = nil
	a.pending = nil
	a.lastObs = nil
	return nil
}

// forward runs the actor and critic on a batch of observations with
// the current recurrent state, without recording gradients
func (a *A2C) forward(batch *graphbatch.Batched) (*tensor.Dense, []float64,
	network.AgentState, error) {
	g := G.NewGraph()
	b := network.NewBinder(g, a.actor.Params(), a.critic.Params())
	in, err := network.NewInputs(b, batch)
	if err != nil {
		return nil, nil, network.AgentState{}, err
	}

	logits, actorNext, err := a.actor.Fwd(b, in, a.state.Actor.Nodes(b, "actor"))
	if err != nil {
		return nil, nil, network.AgentState{}, err
	}
	values, criticNext, err := a.critic.Fwd(b, in,
		a.state.Critic.Nodes(b, "critic"))
	if err != nil {
		return nil, nil, network.AgentState{}, err
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, nil, network.AgentState{}, err
	}

	var next network.AgentState
	if next.Actor, err = actorNext.Value(); err != nil {
		return nil, nil, network.AgentState{}, err
	}
	if next.Critic, err = criticNext.Value(); err != nil {
		return nil, nil, network.AgentState{}, err
	}
	logitsVal := logits.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	valuesVal := append([]float64(nil),
		values.Value().Data().([]float64)...)
	return logitsVal, valuesVal, next, nil
}

// Act implements the agent.Policy interface. In training mode actions
// are sampled and recorded for the next update; in evaluation mode the
// most likely bin of every torsion is chosen and nothing is recorded.
// The recurrent state advances in both modes.
func (a *A2C) Act(obs []timestep.Observation) ([]mat.Vector, error) {
	if len(obs) != a.Width() {
		return nil, errors.Wrapf(network.ErrStateShape, "act: %d "+
			"observations for %d slots", len(obs), a.Width())
	}
	if !a.eval && a.pending != nil {
		return nil, errors.New("act: previous actions not observed")
	}

	batch, _, counts, err := graphbatch.Batch(obs)
	if err != nil {
		return nil, errors.Wrap(err, "act")
	}
	logits, values, next, err := a.forward(batch)
	if err != nil {
		return nil, errors.Wrap(err, "act")
	}

	padded, mask, err := network.PadLogits(logits, counts)
	if err != nil {
		return nil, errors.Wrap(err, "act")
	}
	dist, err := distribution.NewMaskedCategorical(padded, mask, a.rng)
	if err != nil {
		return nil, errors.Wrap(err, "act")
	}

	var chosen [][]int
	if a.eval {
		chosen = dist.Mode()
	} else {
		chosen = dist.Sample()
	}

	actions := make([][]int, len(chosen))
	vecs := make([]mat.Vector, len(chosen))
	for i := range chosen {
		actions[i] = chosen[i][:counts[i]]
		data := make([]float64, counts[i])
		for t, bin := range actions[i] {
			data[t] = float64(bin)
		}
		vecs[i] = mat.NewVecDense(len(data), data)
	}

	if !a.eval {
		if a.buffer.Len() == 0 {
			s := a.state.Clone()
			a.snapshot = &s
		}
		a.pending = &pending{
			observations: obs,
			actions:      actions,
			values:       values,
		}
	}
	a.state = next
	return vecs, nil
}

// Observe implements the agent.Learner interface. Slots whose episode
// ended have their recurrent state zeroed.
func (a *A2C) Observe(results []vecenv.Result) error {
	if len(results) != a.Width() {
		return errors.Wrapf(network.ErrStateShape, "observe: %d results "+
			"for %d slots", len(results), a.Width())
	}

	rewards := make([]float64, len(results))
	dones := make([]bool, len(results))
	next := make([]timestep.Observation, len(results))
	for i, r := range results {
		rewards[i] = r.Reward
		dones[i] = r.Done
		next[i] = r.Observation
	}

	if !a.eval {
		if a.pending == nil {
			return errors.New("observe: no actions to observe")
		}
		err := a.buffer.Add(rollout.Step{
			Observations: a.pending.observations,
			Actions:      a.pending.actions,
			Values:       a.pending.values,
			Rewards:      rewards,
			Dones:        dones,
		})
		if err != nil {
			return errors.Wrap(err, "observe")
		}
		a.pending = nil
		a.lastObs = next
	}

	return a.state.ResetSlots(dones)
}

// Ready implements the agent.Learner interface
func (a *A2C) Ready() bool { return a.buffer.Full() }

// Step implements the agent.Learner interface. It performs one update
// from the collected rollout and clears it.
func (a *A2C) Step() (agent.Stats, error) {
	if a.buffer.Len() == 0 || a.snapshot == nil || a.lastObs == nil {
		return agent.Stats{}, errors.New("step: no experience collected")
	}
	defer a.clear()

	// Bootstrap from the value of the observations after the rollout
	batch, _, _, err := graphbatch.Batch(a.lastObs)
	if err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}
	_, lastValues, _, err := a.forward(batch)
	if err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}
	returns, advantages, err := a.buffer.Returns(a.config.Gamma,
		a.config.Lambda, lastValues)
	if err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}

	g := G.NewGraph()
	b := network.NewBinder(g, a.actor.Params(), a.critic.Params())
	terms, err := a.losses(b, returns, advantages)
	if err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}

	if _, err := G.Grad(terms.loss, b.Learnables()...); err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}
	vm := G.NewTapeMachine(g, G.BindDualValues(b.Learnables()...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return agent.Stats{}, errors.Wrap(err, "step")
	}

	stats := agent.Stats{
		Loss:       scalar(terms.loss),
		PolicyLoss: scalar(terms.policy),
		ValueLoss:  scalar(terms.value),
		Entropy:    scalar(terms.entropy),
		MeanReward: a.buffer.MeanReward(),
	}
	if math.IsNaN(stats.Loss) || math.IsInf(stats.Loss, 0) {
		return stats, errors.Wrapf(ErrDiverged, "step %d", a.steps)
	}

	if err := a.solver.Step(b.Model()); err != nil {
		return stats, errors.Wrap(err, "step")
	}
	b.WriteBack()
	a.steps++

	klog.V(2).Infof("a2c: step %d loss %.5f policy %.5f value %.5f "+
		"entropy %.5f", a.steps, stats.Loss, stats.PolicyLoss,
		stats.ValueLoss, stats.Entropy)
	return stats, nil
}

// clear discards the used rollout. The recurrent state is kept, so the
// next rollout continues the current episodes.
func (a *A2C) clear() {
	a.buffer.Reset()
	a.snapshot = nil
	a.pending = nil
	a.lastObs = nil
}

type lossTerms struct {
	loss, policy, value, entropy *G.Node
}

// losses replays the rollout in the graph of b, starting from the
// recurrent state before its first step and zeroing the state of slots
// whose episode ended, and returns the loss terms averaged over all
// transitions
func (a *A2C) losses(b *network.Binder, returns,
	advantages [][]float64) (lossTerms, error) {
	actorState := a.snapshot.Actor.Nodes(b, "actor")
	criticState := a.snapshot.Critic.Nodes(b, "critic")

	var policySum, valueSum, entropySum *G.Node
	steps := a.buffer.Steps()
	for t, step := range steps {
		batch, _, _, err := graphbatch.Batch(step.Observations)
		if err != nil {
			return lossTerms{}, err
		}
		in, err := network.NewInputs(b, batch)
		if err != nil {
			return lossTerms{}, err
		}

		logits, actorNext, err := a.actor.Fwd(b, in, actorState)
		if err != nil {
			return lossTerms{}, err
		}
		values, criticNext, err := a.critic.Fwd(b, in, criticState)
		if err != nil {
			return lossTerms{}, err
		}

		// Per-environment log-probability of the taken actions and
		// entropy, each a sum over the environment's torsions
		taken := b.Input(oneHot(step.Actions, a.dims.Bins), "actions")
		logProbs := G.Must(G.HadamardProd(op.LogSoftmax(logits), taken))
		logProb := G.Must(G.Mul(in.TorsionSum, G.Must(G.Sum(logProbs, 1))))
		entropy := G.Must(G.Mul(in.TorsionSum, op.Entropy(logits)))

		adv := b.Input(vector(advantages[t]), "advantages")
		ret := b.Input(vector(returns[t]), "returns")
		policy := G.Must(G.Sum(G.Must(G.HadamardProd(logProb, adv))))
		diff := G.Must(G.Sub(ret, values))
		value := G.Must(G.Sum(G.Must(G.Square(diff))))
		ent := G.Must(G.Sum(entropy))

		policySum = accumulate(policySum, policy)
		valueSum = accumulate(valueSum, value)
		entropySum = accumulate(entropySum, ent)

		if t < len(steps)-1 {
			actorState = a.keep(b, actorNext, step.Dones, a.actor.Hidden())
			criticState = a.keep(b, criticNext, step.Dones, a.critic.Hidden())
		}
	}

	n := G.NewConstant(float64(len(steps) * a.Width()))
	policyLoss := G.Must(G.Neg(G.Must(G.HadamardDiv(policySum, n))))
	valueLoss := G.Must(G.HadamardDiv(valueSum, n))
	entropy := G.Must(G.HadamardDiv(entropySum, n))

	valueCoef := G.NewConstant(a.config.ValueCoef)
	entropyCoef := G.NewConstant(a.config.EntropyCoef)
	loss := G.Must(G.Add(policyLoss, G.Must(G.HadamardProd(valueCoef,
		valueLoss))))
	loss = G.Must(G.Sub(loss, G.Must(G.HadamardProd(entropyCoef, entropy))))

	return lossTerms{
		loss:    loss,
		policy:  policyLoss,
		value:   valueLoss,
		entropy: entropy,
	}, nil
}

// keep zeroes the rows of a recurrent state whose slot is done
func (a *A2C) keep(b *network.Binder, s network.StateNodes, dones []bool,
	hidden int) network.StateNodes {
	data := make([]float64, len(dones)*hidden)
	for i, d := range dones {
		if d {
			continue
		}
		for j := i * hidden; j < (i+1)*hidden; j++ {
			data[j] = 1
		}
	}
	mask := tensor.New(tensor.WithShape(len(dones), hidden),
		tensor.WithBacking(data))
	m := b.Input(mask, "keep")
	return network.StateNodes{
		H: G.Must(G.HadamardProd(s.H, m)),
		C: G.Must(G.HadamardProd(s.C, m)),
	}
}

func accumulate(sum, x *G.Node) *G.Node {
	if sum == nil {
		return x
	}
	return G.Must(G.Add(sum, x))
}

// oneHot encodes the actions of all torsions, in batch order, as a
// (torsions x bins) matrix
func oneHot(actions [][]int, bins int) *tensor.Dense {
	var rows int
	for _, acts := range actions {
		rows += len(acts)
	}
	data := make([]float64, rows*bins)
	row := 0
	for _, acts := range actions {
		for _, bin := range acts {
			data[row*bins+bin] = 1
			row++
		}
	}
	return tensor.New(tensor.WithShape(rows, bins), tensor.WithBacking(data))
}

func vector(v []float64) *tensor.Dense {
	return tensor.New(tensor.WithShape(len(v)),
		tensor.WithBacking(append([]float64(nil), v...)))
}

func scalar(n *G.Node) float64 {
	switch v := n.Value().Data().(type) {
	case float64:
		return v
	case []float64:
		return v[0]
	}
	return math.NaN()
}
