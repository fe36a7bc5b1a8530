package environment

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// UniformStarter starts episodes with every rotatable torsion set to
// an angle drawn uniformly from [-180, 180].
type UniformStarter struct {
	torsions int
	rand     *distmv.Uniform
}

// NewUniformStarter returns a new UniformStarter for molecules with
// the given number of rotatable torsions
func NewUniformStarter(torsions int, seed uint64) UniformStarter {
	bounds := make([]r1.Interval, torsions)
	for i := range bounds {
		bounds[i] = r1.Interval{Min: -180, Max: 180}
	}
	source := rand.NewSource(seed)
	rand := distmv.NewUniform(bounds, source)

	return UniformStarter{torsions, rand}
}

// Start implements the Starter interface
func (u UniformStarter) Start(c *molecule.Conformation) {
	if n := c.Topology().NumTorsions(); n != u.torsions {
		panic("start: starter configured for a different molecule")
	}
	for t, angle := range u.rand.Rand(nil) {
		c.SetDihedral(t, angle)
	}
}

// EmbeddingStarter starts every episode from the embedding stored in
// the molecule Config.
type EmbeddingStarter struct{}

// Start implements the Starter interface
func (EmbeddingStarter) Start(*molecule.Conformation) {}
