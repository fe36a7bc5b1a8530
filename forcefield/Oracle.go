// Package forcefield implements energy oracles that evaluate and
// locally minimize the potential energy of molecular conformations.
package forcefield

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// ErrDiverged is returned when an energy or a relaxed position is not
// finite. It is fatal to a training run.
var ErrDiverged = errors.New("force field diverged")

// Oracle evaluates the potential energy of a conformation. Minimize
// relaxes the conformation in place to a nearby local minimum and
// returns its energy. Oracles keep no state between calls that is
// observable by their callers, but an Oracle need not be safe for
// concurrent use; each environment owns its own.
type Oracle interface {
	Energy(c *molecule.Conformation) (float64, error)
	Minimize(ctx context.Context, c *molecule.Conformation) (float64, error)
}

// Factory creates a new Oracle. Environments are given a Factory so
// that no two environments share an Oracle.
type Factory func() Oracle

// StandardEnergy estimates the reference energy of a molecule as the
// lowest energy found by minimizing samples conformers, each with every
// rotatable torsion randomized starting from the embedding of the
// molecule Config.
func StandardEnergy(ctx context.Context, o Oracle, t *molecule.Topology,
	samples int, rng *rand.Rand) (float64, error) {
	if samples < 1 {
		return 0, errors.Errorf("standardEnergy: samples must be positive, "+
			"got %d", samples)
	}

	best := math.Inf(1)
	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		c, err := molecule.NewConformation(t, t.Config().Positions)
		if err != nil {
			return 0, errors.Wrap(err, "standardEnergy")
		}
		c.RandomizeTorsions(rng)

		e, err := o.Minimize(ctx, c)
		if err != nil {
			return 0, errors.Wrapf(err, "standardEnergy: sample %d", i)
		}
		best = math.Min(best, e)
	}

	klog.V(1).Infof("standard energy of %q over %d conformers: %.4f",
		t.Config().Name, samples, best)
	return best, nil
}

func finite(x ...float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
