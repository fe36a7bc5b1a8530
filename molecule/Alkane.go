package molecule

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Ideal sp3 carbon geometry used to embed generated alkanes
const (
	CCBondLength = 1.54  // Angstrom
	CCCAngle     = 114.0 // Degrees
)

// Alkane returns the Config of a linear united-atom alkane with n
// carbons. Hydrogens are folded into the carbon beads.
func Alkane(n int) (Config, error) {
	if n < 4 {
		return Config{}, errors.Errorf("alkane: need at least 4 carbons for "+
			"a rotatable torsion, got %d", n)
	}

	parent := make([]int, n)
	parent[0] = -1
	for i := 1; i < n; i++ {
		parent[i] = i - 1
	}
	return buildAlkane(fmt.Sprintf("alkane-%d", n), parent), nil
}

// BranchedAlkane returns the Config of a randomly branched united-atom
// alkane with n carbons. The first four carbons always form a chain so
// that the molecule has at least one rotatable torsion; the remaining
// carbons are attached to random carbons with fewer than four bonds.
func BranchedAlkane(n int, rng *rand.Rand) (Config, error) {
	if n < 4 {
		return Config{}, errors.Errorf("branchedAlkane: need at least 4 "+
			"carbons for a rotatable torsion, got %d", n)
	}

	parent := make([]int, n)
	degree := make([]int, n)
	parent[0] = -1
	for i := 1; i < n; i++ {
		if i < 4 {
			parent[i] = i - 1
		} else {
			var candidates []int
			for j := 0; j < i; j++ {
				if degree[j] < 4 {
					candidates = append(candidates, j)
				}
			}
			parent[i] = candidates[rng.Intn(len(candidates))]
		}
		degree[parent[i]]++
		degree[i]++
	}
	return buildAlkane(fmt.Sprintf("branched-alkane-%d", n), parent), nil
}

// buildAlkane creates the Config of a tree shaped carbon skeleton,
// where parent[i] < i is the atom that atom i is bonded to.
func buildAlkane(name string, parent []int) Config {
	n := len(parent)
	atoms := make([]Atom, n)
	bonds := make([]Bond, 0, n-1)
	neighbours := make([][]int, n)
	for i := 0; i < n; i++ {
		atoms[i] = Atom{Element: "C"}
		if p := parent[i]; p >= 0 {
			bonds = append(bonds, Bond{Begin: p, End: i, Type: Single})
			neighbours[p] = append(neighbours[p], i)
			neighbours[i] = append(neighbours[i], p)
		}
	}

	positions := make([][3]float64, n)
	if n > 1 {
		positions[1] = [3]float64{CCBondLength, 0, 0}
	}
	for i := 2; i < n; i++ {
		c := parent[i]

		// b is a placed neighbour of c, a is a placed neighbour of b
		b := parent[c]
		if b < 0 {
			b = firstPlaced(neighbours[c], i, -1)
		}
		a := firstPlaced(neighbours[b], i, c)

		var ref [3]float64
		if a >= 0 {
			ref = positions[a]
		} else {
			ref = reference(positions[b], positions[c])
		}

		// Fan out siblings already placed around c
		placed := 0
		for _, nb := range neighbours[c] {
			if nb < i && nb != b {
				placed++
			}
		}
		torsion := 180.0 + 120.0*float64(placed)

		positions[i] = place(ref, positions[b], positions[c], CCBondLength,
			CCCAngle, torsion)
	}

	return Config{
		Name:      name,
		Atoms:     atoms,
		Bonds:     bonds,
		Positions: positions,
	}
}

// firstPlaced returns the lowest neighbour less than limit that is not
// exclude, or -1.
func firstPlaced(neighbours []int, limit, exclude int) int {
	best := -1
	for _, nb := range neighbours {
		if nb < limit && nb != exclude && (best < 0 || nb < best) {
			best = nb
		}
	}
	return best
}

// reference returns a point that is not collinear with b and c
func reference(b, c [3]float64) [3]float64 {
	axis := sub(c, b)
	floats.Scale(1/floats.Norm(axis[:], 2), axis[:])
	if math.Abs(axis[1]) < 0.9 {
		return add(b, [3]float64{0, 1, 0})
	}
	return add(b, [3]float64{0, 0, 1})
}

// place positions a new atom d bonded to c such that |cd| = bond, the
// angle b-c-d is angle and the dihedral a-b-c-d is torsion, using the
// natural extension reference frame construction.
func place(a, b, c [3]float64, bond, angle, torsion float64) [3]float64 {
	theta := angle * math.Pi / 180
	phi := torsion * math.Pi / 180

	bc := sub(c, b)
	floats.Scale(1/floats.Norm(bc[:], 2), bc[:])
	ab := sub(b, a)
	n := cross(ab, bc)
	floats.Scale(1/floats.Norm(n[:], 2), n[:])
	m := cross(n, bc)

	d2 := [3]float64{
		-bond * math.Cos(theta),
		bond * math.Sin(theta) * math.Cos(phi),
		bond * math.Sin(theta) * math.Sin(phi),
	}

	var d [3]float64
	for i := 0; i < 3; i++ {
		d[i] = c[i] + d2[0]*bc[i] + d2[1]*m[i] + d2[2]*n[i]
	}
	return d
}
