package molecule

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
)

// ErrNoTorsions is returned when a molecule has no rotatable torsions,
// and therefore no actions can be taken on it.
var ErrNoTorsions = errors.New("molecule has no rotatable torsions")

// Topology holds the fixed connectivity of a molecule: its bond graph,
// its angles, its rotatable torsions, and for each torsion the set of
// atoms that move when the torsion is rotated. A Topology is derived
// once from a Config and shared (read-only) by every Conformation of
// that molecule.
type Topology struct {
	config Config
	graph  *simple.UndirectedGraph

	bondOf     map[[2]int]int // Sorted atom pair -> bond index
	neighbours [][]int
	angles     [][3]int
	torsions   [][4]int
	moving     [][]int // moving[t] is the atoms rotated by torsion t

	// separation[i][j] is the number of bonds on the shortest path
	// between i and j, or -1 if they are disconnected
	separation [][]int
}

// NewTopology creates and returns the Topology of a molecule
func NewTopology(c Config) (*Topology, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "newTopology")
	}

	n := c.NumAtoms()
	g := simple.NewUndirectedGraph()
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	bondOf := make(map[[2]int]int, len(c.Bonds))
	for i, b := range c.Bonds {
		key := pairKey(b.Begin, b.End)
		if _, ok := bondOf[key]; ok {
			return nil, errors.Errorf("newTopology: duplicate bond %d-%d",
				b.Begin, b.End)
		}
		bondOf[key] = i
		g.SetEdge(simple.Edge{F: simple.Node(b.Begin), T: simple.Node(b.End)})
	}

	// Neighbour lists come from the bonds. gonum v0.9's node iterators
	// walk Go maps through a copy of the runtime iterator, which faults
	// on current Go releases, so the graph is only used for lookups.
	t := &Topology{
		config: c,
		graph:  g,
		bondOf: bondOf,
	}
	t.neighbours = make([][]int, n)
	for _, b := range c.Bonds {
		t.neighbours[b.Begin] = append(t.neighbours[b.Begin], b.End)
		t.neighbours[b.End] = append(t.neighbours[b.End], b.Begin)
	}
	for _, nbrs := range t.neighbours {
		sort.Ints(nbrs)
	}
	t.separation = t.computeSeparation()

	if len(c.Angles) > 0 {
		t.angles = append([][3]int(nil), c.Angles...)
	} else {
		t.angles = t.deriveAngles()
	}

	if len(c.Torsions) > 0 {
		t.torsions = append([][4]int(nil), c.Torsions...)
	} else {
		t.torsions = t.deriveTorsions()
	}
	if len(t.torsions) == 0 {
		return nil, errors.Wrapf(ErrNoTorsions, "newTopology: molecule %q",
			c.Name)
	}

	t.moving = make([][]int, len(t.torsions))
	for i, tor := range t.torsions {
		if !g.HasEdgeBetween(int64(tor[1]), int64(tor[2])) {
			return nil, errors.Errorf("newTopology: torsion %v has no "+
				"central bond", tor)
		}
		side, err := t.movingSide(tor[1], tor[2])
		if err != nil {
			return nil, errors.Wrapf(err, "newTopology: torsion %v", tor)
		}
		t.moving[i] = side
	}

	return t, nil
}

// Config returns the molecule Config the Topology was derived from
func (t *Topology) Config() Config { return t.config }

// NumAtoms returns the number of atoms in the molecule
func (t *Topology) NumAtoms() int { return len(t.neighbours) }

// Bonds returns the bonds of the molecule
func (t *Topology) Bonds() []Bond { return t.config.Bonds }

// Angles returns the angle triples of the molecule
func (t *Topology) Angles() [][3]int { return t.angles }

// Torsions returns the rotatable torsions of the molecule in a stable
// order. The returned slice must not be modified.
func (t *Topology) Torsions() [][4]int { return t.torsions }

// NumTorsions returns the number of rotatable torsions
func (t *Topology) NumTorsions() int { return len(t.torsions) }

// Neighbours returns the atoms bonded to atom i
func (t *Topology) Neighbours(i int) []int { return t.neighbours[i] }

// Degree returns the number of bonds of atom i
func (t *Topology) Degree(i int) int { return len(t.neighbours[i]) }

// Separation returns the number of bonds on the shortest path between
// atoms i and j, or -1 if the atoms are not connected.
func (t *Topology) Separation(i, j int) int { return t.separation[i][j] }

// Moving returns the atoms that are rotated when torsion t is set
func (t *Topology) Moving(torsion int) []int { return t.moving[torsion] }

// Bond returns the bond between atoms i and j, if one exists
func (t *Topology) Bond(i, j int) (Bond, bool) {
	idx, ok := t.bondOf[pairKey(i, j)]
	if !ok {
		return Bond{}, false
	}
	return t.config.Bonds[idx], true
}

// computeSeparation computes the bond-count distance between all pairs
// of atoms with one breadth first search per atom.
func (t *Topology) computeSeparation() [][]int {
	n := len(t.neighbours)
	sep := make([][]int, n)
	for src := 0; src < n; src++ {
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[src] = 0
		queue := []int{src}
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]
			for _, v := range t.neighbours[u] {
				if dist[v] < 0 {
					dist[v] = dist[u] + 1
					queue = append(queue, v)
				}
			}
		}
		sep[src] = dist
	}
	return sep
}

// deriveAngles returns every angle a-centre-b formed by two non-ring
// bonds sharing a centre atom, with a < b.
func (t *Topology) deriveAngles() [][3]int {
	var angles [][3]int
	for centre, nbrs := range t.neighbours {
		for x := 0; x < len(nbrs); x++ {
			for y := x + 1; y < len(nbrs); y++ {
				a, b := nbrs[x], nbrs[y]
				ba, _ := t.Bond(a, centre)
				bb, _ := t.Bond(b, centre)
				if ba.InRing || bb.InRing {
					continue
				}
				angles = append(angles, [3]int{a, centre, b})
			}
		}
	}
	return angles
}

// deriveTorsions returns one torsion per rotatable bond. A bond j-k is
// rotatable if it is a non-ring single bond and both j and k have at
// least one other neighbour. The outer atoms are the lowest indexed
// neighbours of j and k.
func (t *Topology) deriveTorsions() [][4]int {
	var torsions [][4]int
	for _, b := range t.config.Bonds {
		if b.Type != Single || b.InRing {
			continue
		}
		j, k := b.Begin, b.End
		i, ok := t.otherNeighbour(j, k)
		if !ok {
			continue
		}
		l, ok := t.otherNeighbour(k, j)
		if !ok {
			continue
		}
		torsions = append(torsions, [4]int{i, j, k, l})
	}
	return torsions
}

// otherNeighbour returns the lowest indexed neighbour of atom that is
// not exclude.
func (t *Topology) otherNeighbour(atom, exclude int) (int, bool) {
	for _, n := range t.neighbours[atom] {
		if n != exclude {
			return n, true
		}
	}
	return 0, false
}

// movingSide returns the atoms reachable from k without crossing the
// bond j-k. It is an error if j is reachable, in which case the bond
// is part of a ring and cannot be rotated.
func (t *Topology) movingSide(j, k int) ([]int, error) {
	seen := map[int]bool{k: true}
	queue := []int{k}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range t.neighbours[u] {
			if u == k && v == j {
				continue
			}
			if v == j {
				return nil, errors.Errorf("bond %d-%d is in a ring", j, k)
			}
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}

	side := make([]int, 0, len(seen))
	for atom := range seen {
		side = append(side, atom)
	}
	sort.Ints(side)
	return side, nil
}

func pairKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}
