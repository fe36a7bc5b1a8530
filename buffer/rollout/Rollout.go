// Package rollout implements an on-policy rollout buffer for a batch of
// environments stepped in lockstep, together with n-step returns and
// generalized advantage estimates - GAE(λ) - computed per environment
// slot with episode boundaries masked out.
//
// The advantage calculation is adapted from:
//
// https://github.com/openai/spinningup/tree/master/spinup/algos/tf1/vpg
package rollout

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/conformerrl/timestep"
)

// ErrFull is returned when adding to a full Buffer
var ErrFull = errors.New("rollout buffer is full")

// ErrWidth is returned when a step does not have one entry per
// environment slot
var ErrWidth = errors.New("rollout step has the wrong width")

// Step is one lockstep transition of every environment slot. Done[i]
// is true if the transition of slot i ended its episode, in which case
// the observation of the next step belongs to a new episode.
type Step struct {
	Observations []timestep.Observation
	Actions      [][]int // Bin of each torsion of each slot
	Values       []float64
	Rewards      []float64
	Dones        []bool
}

func (s Step) width() (int, error) {
	w := len(s.Observations)
	if len(s.Actions) != w || len(s.Values) != w || len(s.Rewards) != w ||
		len(s.Dones) != w {
		return 0, errors.Wrapf(ErrWidth, "observations %d, actions %d, "+
			"values %d, rewards %d, dones %d", w, len(s.Actions),
			len(s.Values), len(s.Rewards), len(s.Dones))
	}
	return w, nil
}

// Buffer stores up to a fixed number of Steps of a fixed width
type Buffer struct {
	width    int
	capacity int
	steps    []Step
}

// New returns a new Buffer holding capacity steps of width slots
func New(width, capacity int) (*Buffer, error) {
	if width < 1 || capacity < 1 {
		return nil, errors.Errorf("new: width and capacity must be "+
			"positive, got %d and %d", width, capacity)
	}
	return &Buffer{
		width:    width,
		capacity: capacity,
		steps:    make([]Step, 0, capacity),
	}, nil
}

// Width returns the number of environment slots of each step
func (b *Buffer) Width() int { return b.width }

// Capacity returns the maximum number of steps of the Buffer
func (b *Buffer) Capacity() int { return b.capacity }

// Len returns the number of stored steps
func (b *Buffer) Len() int { return len(b.steps) }

// Full returns whether the Buffer holds Capacity steps
func (b *Buffer) Full() bool { return len(b.steps) == b.capacity }

// Add appends a step to the Buffer
func (b *Buffer) Add(s Step) error {
	if b.Full() {
		return errors.Wrapf(ErrFull, "add: capacity %d", b.capacity)
	}
	w, err := s.width()
	if err != nil {
		return errors.Wrap(err, "add")
	}
	if w != b.width {
		return errors.Wrapf(ErrWidth, "add: expected %d slots, got %d",
			b.width, w)
	}
	b.steps = append(b.steps, s)
	return nil
}

// Steps returns the stored steps in order
func (b *Buffer) Steps() []Step { return b.steps }

// Reset clears the Buffer
func (b *Buffer) Reset() { b.steps = b.steps[:0] }

// MeanReward returns the mean reward over all stored transitions
func (b *Buffer) MeanReward() float64 {
	rewards := make([]float64, 0, b.Len()*b.width)
	for _, s := range b.steps {
		rewards = append(rewards, s.Rewards...)
	}
	if len(rewards) == 0 {
		return 0
	}
	return stat.Mean(rewards, nil)
}

// Returns computes the discounted returns and advantages of every
// stored transition, indexed [step][slot]. lastValues holds the value
// estimate of the observation following the final step of each slot.
//
// Returns are R_t = r_t + γ (1 - done_t) R_{t+1}, bootstrapped from
// lastValues and zero after a terminal transition. Advantages are
// GAE(λ) estimates, which equal R_t - V(s_t) when λ = 1.
func (b *Buffer) Returns(gamma, lambda float64, lastValues []float64) (
	[][]float64, [][]float64, error) {
	if len(lastValues) != b.width {
		return nil, nil, errors.Wrapf(ErrWidth, "returns: %d last values "+
			"for %d slots", len(lastValues), b.width)
	}
	if gamma < 0 || gamma > 1 || lambda < 0 || lambda > 1 {
		return nil, nil, errors.Errorf("returns: γ and λ must be in [0, 1], "+
			"got %v and %v", gamma, lambda)
	}

	n := b.Len()
	returns := make([][]float64, n)
	advantages := make([][]float64, n)
	for t := range returns {
		returns[t] = make([]float64, b.width)
		advantages[t] = make([]float64, b.width)
	}

	for slot := 0; slot < b.width; slot++ {
		start := 0
		for t := 0; t < n; t++ {
			last := t == n-1
			if !b.steps[t].Dones[slot] && !last {
				continue
			}

			bootstrap := lastValues[slot]
			if b.steps[t].Dones[slot] {
				bootstrap = 0
			}
			b.finishPath(slot, start, t+1, bootstrap, gamma, lambda,
				returns, advantages)
			start = t + 1
		}
	}
	return returns, advantages, nil
}

// finishPath fills the returns and advantages of slot over the steps
// [start, stop), which form one episode segment
func (b *Buffer) finishPath(slot, start, stop int, lastVal, gamma,
	lambda float64, returns, advantages [][]float64) {
	length := stop - start
	rews := make([]float64, length+1)
	vals := make([]float64, length+1)
	for i := 0; i < length; i++ {
		rews[i] = b.steps[start+i].Rewards[slot]
		vals[i] = b.steps[start+i].Values[slot]
	}
	rews[length] = lastVal
	vals[length] = lastVal

	// GAE-lambda advantage calculation
	stateVals := mat.NewVecDense(length, vals[:length])
	nextStateVals := mat.NewVecDense(length, vals[1:])
	rewards := mat.NewVecDense(length, rews[:length])

	deltas := mat.NewVecDense(length, nil)
	deltas.AddScaledVec(rewards, gamma, nextStateVals)
	deltas.SubVec(deltas, stateVals)
	adv := discountCumSum(deltas, gamma*lambda)

	// Rewards-to-go
	rewsToGo := discountCumSum(mat.NewVecDense(length+1, rews), gamma)

	for i := 0; i < length; i++ {
		advantages[start+i][slot] = adv[i]
		returns[start+i][slot] = rewsToGo[i]
	}
}

// discountCumSum computes and returns the discounted cumulative sum
// of all elements of a vector. Given a vector v = [x0 x1 x2 ... xN]
// and discount ℽ, this function computes and returns:
//
//	[
//		x0 + ℽ x1 + ℽ^2 x2 + ... + ℽ^N xN
//		x1 + ℽ x2 + ... + ℽ^(N-1) xN
//		...
//		xN
//	]
func discountCumSum(x *mat.VecDense, discount float64) []float64 {
	n := x.Len()
	discounts := mat.NewVecDense(n, nil)
	cumSums := make([]float64, n)
	nextScaled := mat.NewVecDense(n, nil)
	backing := nextScaled.RawVector().Data

	for i := 0; i < n; i++ {
		discounts.ScaleVec(discount, discounts)
		discounts.SetVec(n-i-1, 1)

		nextScaled.MulElemVec(discounts, x)
		cumSums[n-i-1] = floats.Sum(backing[n-i-1:])
	}
	return cumSums
}
