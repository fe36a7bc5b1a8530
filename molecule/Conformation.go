package molecule

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Conformation is one 3D arrangement of a molecule. The Topology is
// shared and never mutated; the positions are owned by the
// Conformation and mutated in place by SetDihedral and SetCoordinates.
type Conformation struct {
	topology  *Topology
	positions [][3]float64
}

// NewConformation returns a new Conformation of a molecule with the
// given positions, which are copied.
func NewConformation(t *Topology, positions [][3]float64) (*Conformation,
	error) {
	if len(positions) != t.NumAtoms() {
		return nil, errors.Errorf("newConformation: %d positions for %d "+
			"atoms", len(positions), t.NumAtoms())
	}

	pos := make([][3]float64, len(positions))
	copy(pos, positions)
	return &Conformation{topology: t, positions: pos}, nil
}

// Topology returns the Topology of the molecule
func (c *Conformation) Topology() *Topology { return c.topology }

// NumAtoms returns the number of atoms in the molecule
func (c *Conformation) NumAtoms() int { return len(c.positions) }

// Position returns the position of atom i
func (c *Conformation) Position(i int) [3]float64 { return c.positions[i] }

// Positions returns a copy of all atom positions
func (c *Conformation) Positions() [][3]float64 {
	out := make([][3]float64, len(c.positions))
	copy(out, c.positions)
	return out
}

// Coordinates returns the positions flattened into a single slice as
// x0 y0 z0 x1 y1 z1 ...
func (c *Conformation) Coordinates() []float64 {
	out := make([]float64, 0, 3*len(c.positions))
	for _, p := range c.positions {
		out = append(out, p[:]...)
	}
	return out
}

// SetCoordinates sets the positions from a flattened coordinate slice
// as returned by Coordinates.
func (c *Conformation) SetCoordinates(x []float64) {
	if len(x) != 3*len(c.positions) {
		panic(fmt.Sprintf("setCoordinates: expected %d coordinates, got %d",
			3*len(c.positions), len(x)))
	}
	for i := range c.positions {
		copy(c.positions[i][:], x[3*i:3*i+3])
	}
}

// Clone returns a deep copy of the Conformation sharing the Topology
func (c *Conformation) Clone() *Conformation {
	return &Conformation{topology: c.topology, positions: c.Positions()}
}

// Distance returns the distance between atoms i and j in Angstrom
func (c *Conformation) Distance(i, j int) float64 {
	return Distance(c.positions[i], c.positions[j])
}

// Angle returns the angle i-j-k in degrees
func (c *Conformation) Angle(i, j, k int) float64 {
	return Angle(c.positions[i], c.positions[j], c.positions[k])
}

// Dihedral returns the dihedral angle of the four atoms in degrees,
// in the range [-180, 180].
func (c *Conformation) Dihedral(torsion [4]int) float64 {
	p := c.positions
	return Dihedral(p[torsion[0]], p[torsion[1]], p[torsion[2]],
		p[torsion[3]])
}

// TorsionAngles returns the current dihedral angle of every rotatable
// torsion, in Topology order.
func (c *Conformation) TorsionAngles() []float64 {
	torsions := c.topology.Torsions()
	out := make([]float64, len(torsions))
	for i, t := range torsions {
		out[i] = c.Dihedral(t)
	}
	return out
}

// SetDihedral rotates the moving side of rotatable torsion t about its
// central bond so that its dihedral angle becomes degrees.
func (c *Conformation) SetDihedral(t int, degrees float64) {
	torsion := c.topology.Torsions()[t]
	delta := degrees - c.Dihedral(torsion)
	c.rotate(torsion[1], torsion[2], c.topology.Moving(t), delta)
}

// RandomizeTorsions sets every rotatable torsion to an angle drawn
// uniformly from [-180, 180).
func (c *Conformation) RandomizeTorsions(rng *rand.Rand) {
	for t := range c.topology.Torsions() {
		c.SetDihedral(t, -180+360*rng.Float64())
	}
}

// rotate rotates the given atoms by degrees about the axis j -> k
// using Rodrigues' rotation formula. A positive angle increases the
// dihedral of any torsion i-j-k-l with l in atoms.
func (c *Conformation) rotate(j, k int, atoms []int, degrees float64) {
	origin := c.positions[k]
	axis := sub(c.positions[k], c.positions[j])
	norm := floats.Norm(axis[:], 2)
	if norm == 0 {
		panic(fmt.Sprintf("rotate: atoms %d and %d coincide", j, k))
	}
	floats.Scale(1/norm, axis[:])

	theta := degrees * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)

	for _, a := range atoms {
		v := sub(c.positions[a], origin)
		kxv := cross(axis, v)
		kdv := floats.Dot(axis[:], v[:])

		var r [3]float64
		for d := 0; d < 3; d++ {
			r[d] = v[d]*cos + kxv[d]*sin + axis[d]*kdv*(1-cos)
		}
		c.positions[a] = add(r, origin)
	}
}

// Distance returns the Euclidean distance between two points
func Distance(a, b [3]float64) float64 {
	return floats.Distance(a[:], b[:], 2)
}

// Angle returns the angle a-b-c in degrees
func Angle(a, b, c [3]float64) float64 {
	u := sub(a, b)
	v := sub(c, b)
	cos := floats.Dot(u[:], v[:]) / (floats.Norm(u[:], 2) *
		floats.Norm(v[:], 2))
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Dihedral returns the dihedral angle p0-p1-p2-p3 in degrees
func Dihedral(p0, p1, p2, p3 [3]float64) float64 {
	b0 := sub(p0, p1)
	b1 := sub(p2, p1)
	b2 := sub(p3, p2)

	n := floats.Norm(b1[:], 2)
	floats.Scale(1/n, b1[:])

	// Components of b0 and b2 perpendicular to b1
	v := b0
	floats.AddScaled(v[:], -floats.Dot(b0[:], b1[:]), b1[:])
	w := b2
	floats.AddScaled(w[:], -floats.Dot(b2[:], b1[:]), b1[:])

	x := floats.Dot(v[:], w[:])
	b1xv := cross(b1, v)
	y := floats.Dot(b1xv[:], w[:])

	return math.Atan2(y, x) * 180 / math.Pi
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func add(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
