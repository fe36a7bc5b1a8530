// Package distribution implements action distributions over padded,
// ragged batches of torsions.
package distribution

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Masked marks the action of a padded torsion
const Masked = -1

// MaskedCategorical is a batch of independent categorical
// distributions, one per (environment, torsion) pair, stored as padded
// logits of shape (environments x max torsions x bins) together with a
// validity mask of shape (environments x max torsions).
//
// Masked torsions have all their logits treated as -inf: they are
// never sampled and contribute nothing to log probabilities or
// entropies. All per-environment quantities are sums over the valid
// torsions of the environment.
//
// Agents use a MaskedCategorical to select actions. Training computes
// the same log probabilities and entropies inside the expression graph
// from the unpadded logits with op.LogSoftmax and op.Entropy.
type MaskedCategorical struct {
	envs, torsions, bins int
	logProbs             []float64 // Normalized log probabilities
	mask                 [][]bool
	src                  rand.Source
}

// NewMaskedCategorical returns a new MaskedCategorical. The logits must
// have shape (B x T x K) and the mask shape (B x T). Each environment
// must have at least one valid torsion.
func NewMaskedCategorical(logits *tensor.Dense, mask [][]bool,
	src rand.Source) (*MaskedCategorical, error) {
	shape := logits.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("newMaskedCategorical: logits must be "+
			"3-dimensional, got shape %v", shape)
	}
	envs, torsions, bins := shape[0], shape[1], shape[2]
	if len(mask) != envs {
		return nil, errors.Errorf("newMaskedCategorical: mask has %d rows "+
			"for %d environments", len(mask), envs)
	}

	data, ok := logits.Data().([]float64)
	if !ok {
		return nil, errors.Errorf("newMaskedCategorical: logits must be "+
			"float64, got %v", logits.Dtype())
	}

	logProbs := make([]float64, len(data))
	for b := 0; b < envs; b++ {
		if len(mask[b]) != torsions {
			return nil, errors.Errorf("newMaskedCategorical: mask row %d "+
				"has %d entries, expected %d", b, len(mask[b]), torsions)
		}
		valid := 0
		for t := 0; t < torsions; t++ {
			start := (b*torsions + t) * bins
			row := logProbs[start : start+bins]
			if !mask[b][t] {
				for k := range row {
					row[k] = math.Inf(-1)
				}
				continue
			}
			valid++
			copy(row, data[start:start+bins])
			lse := floats.LogSumExp(row)
			floats.AddConst(-lse, row)
		}
		if valid == 0 {
			return nil, errors.Errorf("newMaskedCategorical: environment %d "+
				"has no valid torsions", b)
		}
	}

	m := make([][]bool, envs)
	for b := range mask {
		m[b] = append([]bool(nil), mask[b]...)
	}

	return &MaskedCategorical{
		envs:     envs,
		torsions: torsions,
		bins:     bins,
		logProbs: logProbs,
		mask:     m,
		src:      src,
	}, nil
}

// row returns the normalized log probabilities of torsion t of
// environment b
func (m *MaskedCategorical) row(b, t int) []float64 {
	start := (b*m.torsions + t) * m.bins
	return m.logProbs[start : start+m.bins]
}

// Valid returns whether torsion t of environment b is valid
func (m *MaskedCategorical) Valid(b, t int) bool { return m.mask[b][t] }

// Sample samples one bin per valid torsion. Masked torsions are given
// the action Masked.
func (m *MaskedCategorical) Sample() [][]int {
	out := make([][]int, m.envs)
	weights := make([]float64, m.bins)
	for b := range out {
		out[b] = make([]int, m.torsions)
		for t := range out[b] {
			if !m.mask[b][t] {
				out[b][t] = Masked
				continue
			}
			for k, lp := range m.row(b, t) {
				weights[k] = math.Exp(lp)
			}
			out[b][t] = int(distuv.NewCategorical(weights, m.src).Rand())
		}
	}
	return out
}

// Mode returns the most likely bin of every valid torsion. Masked
// torsions are given the action Masked.
func (m *MaskedCategorical) Mode() [][]int {
	out := make([][]int, m.envs)
	for b := range out {
		out[b] = make([]int, m.torsions)
		for t := range out[b] {
			if !m.mask[b][t] {
				out[b][t] = Masked
				continue
			}
			out[b][t] = floats.MaxIdx(m.row(b, t))
		}
	}
	return out
}

// LogProb returns, for each environment, the sum of the log
// probabilities of the actions of its valid torsions. Actions of
// masked torsions are ignored.
func (m *MaskedCategorical) LogProb(actions [][]int) ([]float64, error) {
	if len(actions) != m.envs {
		return nil, errors.Errorf("logProb: got actions for %d environments, "+
			"expected %d", len(actions), m.envs)
	}

	out := make([]float64, m.envs)
	for b := range out {
		if len(actions[b]) != m.torsions {
			return nil, errors.Errorf("logProb: environment %d has %d "+
				"actions, expected %d", b, len(actions[b]), m.torsions)
		}
		for t, a := range actions[b] {
			if !m.mask[b][t] {
				continue
			}
			if a < 0 || a >= m.bins {
				return nil, errors.Errorf("logProb: action %d of environment "+
					"%d torsion %d out of range", a, b, t)
			}
			out[b] += m.row(b, t)[a]
		}
	}
	return out, nil
}

// Entropy returns, for each environment, the sum of the entropies of
// the distributions of its valid torsions
func (m *MaskedCategorical) Entropy() []float64 {
	out := make([]float64, m.envs)
	for b := range out {
		for t := 0; t < m.torsions; t++ {
			if !m.mask[b][t] {
				continue
			}
			for _, lp := range m.row(b, t) {
				if p := math.Exp(lp); p > 0 {
					out[b] -= p * lp
				}
			}
		}
	}
	return out
}
