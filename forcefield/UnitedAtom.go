package forcefield

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// Params are the parameters of the united-atom force field. Energies
// are in kcal/mol, distances in Angstrom and angles in degrees.
type Params struct {
	BondK      float64 // kcal/mol/A^2
	BondLength float64
	AngleK     float64 // kcal/mol/rad^2
	Angle      float64

	// OPLS style cosine series coefficients of the torsion potential
	// c1(1 + cos φ) + c2(1 - cos 2φ) + c3(1 + cos 3φ)
	Torsion [3]float64

	Epsilon float64 // Lennard-Jones well depth
	Sigma   float64 // Lennard-Jones diameter

	// MinDistance clamps pair distances from below so that overlapping
	// atoms produce a large but finite repulsion.
	MinDistance float64

	// MaxIterations bounds the number of L-BFGS iterations of a
	// minimization; zero means no limit.
	MaxIterations int
}

// DefaultParams returns TraPPE-UA like parameters for CHx beads
func DefaultParams() Params {
	return Params{
		BondK:         300,
		BondLength:    molecule.CCBondLength,
		AngleK:        62.1,
		Angle:         molecule.CCCAngle,
		Torsion:       [3]float64{0.7055, -0.1355, 1.5725},
		Epsilon:       0.0914,
		Sigma:         3.95,
		MinDistance:   0.5,
		MaxIterations: 200,
	}
}

// Validate returns an error describing whether the Params are valid
func (p Params) Validate() error {
	if p.BondK <= 0 || p.AngleK <= 0 {
		return errors.New("force field: force constants must be positive")
	}
	if p.Sigma <= 0 || p.Epsilon < 0 {
		return errors.New("force field: invalid Lennard-Jones parameters")
	}
	if p.MinDistance <= 0 {
		return errors.New("force field: minimum distance must be positive")
	}
	if p.MaxIterations < 0 {
		return errors.New("force field: max iterations must be non-negative")
	}
	return nil
}

// terms holds the interaction lists of one molecule
type terms struct {
	topology  *molecule.Topology
	bonds     [][2]int
	angles    [][3]int
	dihedrals [][4]int
	pairs     [][2]int // Non-bonded pairs more than 3 bonds apart
}

func newTerms(t *molecule.Topology) *terms {
	out := &terms{topology: t, angles: t.Angles()}
	for _, b := range t.Bonds() {
		out.bonds = append(out.bonds, [2]int{b.Begin, b.End})

		// Every proper dihedral about the bond contributes
		for _, i := range t.Neighbours(b.Begin) {
			if i == b.End {
				continue
			}
			for _, l := range t.Neighbours(b.End) {
				if l == b.Begin || l == i {
					continue
				}
				out.dihedrals = append(out.dihedrals,
					[4]int{i, b.Begin, b.End, l})
			}
		}
	}

	n := t.NumAtoms()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sep := t.Separation(i, j); sep < 0 || sep > 3 {
				out.pairs = append(out.pairs, [2]int{i, j})
			}
		}
	}
	return out
}

// UnitedAtom is a united-atom alkane force field: harmonic bonds and
// angles, cosine series torsions and Lennard-Jones interactions between
// atoms separated by more than three bonds.
type UnitedAtom struct {
	params Params
	terms  *terms
}

// NewUnitedAtom returns a new UnitedAtom oracle
func NewUnitedAtom(p Params) (*UnitedAtom, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &UnitedAtom{params: p}, nil
}

// NewUnitedAtomFactory returns a Factory of UnitedAtom oracles
func NewUnitedAtomFactory(p Params) (Factory, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return func() Oracle {
		return &UnitedAtom{params: p}
	}, nil
}

// Energy implements the Oracle interface
func (u *UnitedAtom) Energy(c *molecule.Conformation) (float64, error) {
	e := u.energy(u.termsOf(c.Topology()), c.Coordinates())
	if !finite(e) {
		return e, errors.Wrapf(ErrDiverged, "energy of %q",
			c.Topology().Config().Name)
	}
	return e, nil
}

// Minimize implements the Oracle interface. The conformation is
// relaxed with L-BFGS using central finite difference gradients.
// Line search failures near a minimum are not errors as long as the
// best location found is finite.
func (u *UnitedAtom) Minimize(ctx context.Context,
	c *molecule.Conformation) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ts := u.termsOf(c.Topology())
	f := func(x []float64) float64 { return u.energy(ts, x) }
	problem := optimize.Problem{
		Func: f,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, f, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-4,
		MajorIterations:   u.params.MaxIterations,
	}

	x0 := c.Coordinates()
	e0 := f(x0)
	if !finite(e0) {
		return e0, errors.Wrapf(ErrDiverged, "minimize %q: initial energy",
			c.Topology().Config().Name)
	}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if result == nil {
		return 0, errors.Wrapf(err, "minimize %q", c.Topology().Config().Name)
	}
	if err != nil {
		klog.V(2).Infof("minimize %q: stopping early after %d iterations: %v",
			c.Topology().Config().Name, result.MajorIterations, err)
	}

	if !finite(result.F) || !finite(result.X...) {
		return result.F, errors.Wrapf(ErrDiverged, "minimize %q",
			c.Topology().Config().Name)
	}

	// The optimizer only reports its best location; never accept a
	// worse one than we started with.
	if result.F > e0 {
		return e0, nil
	}
	c.SetCoordinates(result.X)
	return result.F, nil
}

func (u *UnitedAtom) termsOf(t *molecule.Topology) *terms {
	if u.terms == nil || u.terms.topology != t {
		u.terms = newTerms(t)
	}
	return u.terms
}

// energy returns the potential energy of flattened coordinates x
func (u *UnitedAtom) energy(ts *terms, x []float64) float64 {
	p := u.params
	pos := func(i int) [3]float64 {
		return [3]float64{x[3*i], x[3*i+1], x[3*i+2]}
	}

	var e float64
	for _, b := range ts.bonds {
		dr := math.Max(molecule.Distance(pos(b[0]), pos(b[1])),
			p.MinDistance) - p.BondLength
		e += p.BondK * dr * dr
	}

	theta0 := p.Angle * math.Pi / 180
	for _, a := range ts.angles {
		dt := molecule.Angle(pos(a[0]), pos(a[1]), pos(a[2]))*math.Pi/180 -
			theta0
		e += p.AngleK * dt * dt
	}

	for _, d := range ts.dihedrals {
		phi := molecule.Dihedral(pos(d[0]), pos(d[1]), pos(d[2]),
			pos(d[3])) * math.Pi / 180
		e += p.Torsion[0]*(1+math.Cos(phi)) +
			p.Torsion[1]*(1-math.Cos(2*phi)) +
			p.Torsion[2]*(1+math.Cos(3*phi))
	}

	for _, pair := range ts.pairs {
		r := math.Max(molecule.Distance(pos(pair[0]), pos(pair[1])),
			p.MinDistance)
		sr6 := math.Pow(p.Sigma/r, 6)
		e += 4 * p.Epsilon * (sr6*sr6 - sr6)
	}

	return e
}
