package environment

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// BinStarter starts episodes with every rotatable torsion set to one
// of the angles reachable by a DiscreteAction with the same number of
// bins, drawn uniformly.
type BinStarter struct {
	action DiscreteAction
	rand   distuv.Categorical
}

// NewBinStarter returns a new BinStarter over bins angle bins
func NewBinStarter(bins int, seed uint64) (*BinStarter, error) {
	action, err := NewDiscreteAction(bins)
	if err != nil {
		return nil, err
	}
	weights := make([]float64, bins)
	for i := range weights {
		weights[i] = 1.0 / float64(bins)
	}
	return &BinStarter{
		action: action,
		rand:   distuv.NewCategorical(weights, rand.NewSource(seed)),
	}, nil
}

// Start implements the Starter interface
func (b *BinStarter) Start(c *molecule.Conformation) {
	n := c.Topology().NumTorsions()
	if n == 0 {
		return
	}
	bins := make([]float64, n)
	for i := range bins {
		bins[i] = b.rand.Rand()
	}
	for t, angle := range b.action.Targets(mat.NewVecDense(n, bins)) {
		c.SetDihedral(t, angle)
	}
}
