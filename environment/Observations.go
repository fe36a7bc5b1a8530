package environment

import (
	"github.com/samuelfneumann/conformerrl/molecule"
	"github.com/samuelfneumann/conformerrl/timestep"
)

// EdgeDim is the width of an edge feature row: four bond type flags,
// conjugated, in ring, angle / 180, dihedral / 180 and distance.
const EdgeDim = 9

const (
	conjugatedFeature = 4
	inRingFeature     = 5
	angleFeature      = 6
	dihedralFeature   = 7
	distanceFeature   = 8
)

// GraphObservation observes the positions of each atom as its node
// features.
type GraphObservation struct{}

// NodeDim implements the ObservationStrategy interface
func (GraphObservation) NodeDim() int { return 3 }

// Observe implements the ObservationStrategy interface
func (GraphObservation) Observe(c *molecule.Conformation) timestep.Observation {
	nodes := make([][]float64, c.NumAtoms())
	for i := range nodes {
		p := c.Position(i)
		nodes[i] = []float64{p[0], p[1], p[2]}
	}
	return graphObservation(c, nodes)
}

// SkeletonObservation observes the position of each atom, its degree
// divided by 4 and whether it belongs to a rotatable torsion.
type SkeletonObservation struct{}

// NodeDim implements the ObservationStrategy interface
func (SkeletonObservation) NodeDim() int { return 5 }

// Observe implements the ObservationStrategy interface
func (SkeletonObservation) Observe(
	c *molecule.Conformation) timestep.Observation {
	t := c.Topology()
	inTorsion := make([]bool, c.NumAtoms())
	for _, tor := range t.Torsions() {
		for _, a := range tor {
			inTorsion[a] = true
		}
	}

	nodes := make([][]float64, c.NumAtoms())
	for i := range nodes {
		p := c.Position(i)
		var flag float64
		if inTorsion[i] {
			flag = 1
		}
		nodes[i] = []float64{p[0], p[1], p[2], float64(t.Degree(i)) / 4, flag}
	}
	return graphObservation(c, nodes)
}

// graphObservation builds the edges of an observation: one edge per
// bond, one per angle between its outer atoms and one per rotatable
// torsion between its outer atoms.
func graphObservation(c *molecule.Conformation,
	nodes [][]float64) timestep.Observation {
	t := c.Topology()
	bonds, angles, torsions := t.Bonds(), t.Angles(), t.Torsions()
	size := len(bonds) + len(angles) + len(torsions)

	edges := make([][2]int, 0, size)
	features := make([][]float64, 0, size)
	addEdge := func(i, j int) []float64 {
		f := make([]float64, EdgeDim)
		f[distanceFeature] = c.Distance(i, j)
		edges = append(edges, [2]int{i, j})
		features = append(features, f)
		return f
	}

	for _, b := range bonds {
		f := addEdge(b.Begin, b.End)
		f[int(b.Type)] = 1
		if b.Conjugated {
			f[conjugatedFeature] = 1
		}
		if b.InRing {
			f[inRingFeature] = 1
		}
	}
	for _, a := range angles {
		f := addEdge(a[0], a[2])
		f[angleFeature] = c.Angle(a[0], a[1], a[2]) / 180
	}
	for _, tor := range torsions {
		f := addEdge(tor[0], tor[3])
		f[dihedralFeature] = c.Dihedral(tor) / 180
	}

	return timestep.Observation{
		Nodes:        nodes,
		Edges:        edges,
		EdgeFeatures: features,
		Torsions:     append([][4]int(nil), torsions...),
	}
}
