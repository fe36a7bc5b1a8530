package environment

import (
	"math"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// GibbsReward rewards low energy conformers with the Boltzmann factor
// exp(-(E - E_ref) / Scale) relative to the reference energy. The
// reward is exactly 1 at the reference energy.
type GibbsReward struct {
	// Scale is the energy scale of the Boltzmann factor, defaulting
	// to 1 when zero
	Scale float64
}

// Reset implements the RewardStrategy interface
func (GibbsReward) Reset() {}

// Reward implements the RewardStrategy interface
func (g GibbsReward) Reward(energy, standardEnergy float64,
	_ *molecule.Conformation) float64 {
	return gibbs(energy, standardEnergy, g.Scale)
}

func gibbs(energy, standardEnergy, scale float64) float64 {
	if scale == 0 {
		scale = 1
	}
	return math.Exp(-(energy - standardEnergy) / scale)
}

// UniqueGibbsReward only gives the Gibbs reward for conformers that
// have not been seen before in the current episode. A conformer is new
// if, for some torsion, its angle differs by more than Threshold
// degrees from every conformer seen so far. Repeated conformers are
// rewarded with Floor, which keeps rewards positive.
type UniqueGibbsReward struct {
	Scale     float64
	Threshold float64
	Floor     float64

	seen [][]float64
}

// NewUniqueGibbsReward returns a new UniqueGibbsReward
func NewUniqueGibbsReward(threshold, floor float64) *UniqueGibbsReward {
	return &UniqueGibbsReward{Threshold: threshold, Floor: floor}
}

// Reset implements the RewardStrategy interface
func (u *UniqueGibbsReward) Reset() {
	u.seen = u.seen[:0]
}

// Reward implements the RewardStrategy interface
func (u *UniqueGibbsReward) Reward(energy, standardEnergy float64,
	c *molecule.Conformation) float64 {
	fingerprint := c.TorsionAngles()
	if near(u.seen, fingerprint, u.Threshold) {
		return u.Floor
	}
	u.seen = append(u.seen, fingerprint)
	return gibbs(energy, standardEnergy, u.Scale)
}

// PruningGibbsReward gives the Gibbs reward, but remembers every
// conformer whose energy exceeds the reference energy by more than
// PruneThreshold. Conformers within Threshold degrees of a pruned
// conformer have their reward multiplied by Penalty.
type PruningGibbsReward struct {
	Scale          float64
	PruneThreshold float64
	Threshold      float64
	Penalty        float64

	pruned [][]float64
}

// NewPruningGibbsReward returns a new PruningGibbsReward
func NewPruningGibbsReward(pruneThreshold, threshold,
	penalty float64) *PruningGibbsReward {
	return &PruningGibbsReward{
		PruneThreshold: pruneThreshold,
		Threshold:      threshold,
		Penalty:        penalty,
	}
}

// Reset implements the RewardStrategy interface
func (p *PruningGibbsReward) Reset() {
	p.pruned = p.pruned[:0]
}

// Reward implements the RewardStrategy interface
func (p *PruningGibbsReward) Reward(energy, standardEnergy float64,
	c *molecule.Conformation) float64 {
	reward := gibbs(energy, standardEnergy, p.Scale)
	fingerprint := c.TorsionAngles()

	if near(p.pruned, fingerprint, p.Threshold) {
		reward *= p.Penalty
	}
	if energy-standardEnergy > p.PruneThreshold {
		p.pruned = append(p.pruned, fingerprint)
	}
	return reward
}

// near returns whether any fingerprint in seen is within threshold
// degrees of f in every torsion
func near(seen [][]float64, f []float64, threshold float64) bool {
	for _, s := range seen {
		if maxAngleDiff(s, f) <= threshold {
			return true
		}
	}
	return false
}

// maxAngleDiff returns the largest circular difference in degrees
// between corresponding angles
func maxAngleDiff(a, b []float64) float64 {
	var m float64
	for i := range a {
		d := math.Abs(math.Mod(a[i]-b[i], 360))
		if d > 180 {
			d = 360 - d
		}
		m = math.Max(m, d)
	}
	return m
}
