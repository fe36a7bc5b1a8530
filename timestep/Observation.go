package timestep

import "github.com/pkg/errors"

// Observation is an immutable snapshot of a molecular graph: one
// feature row per atom, a list of undirected edges with one feature row
// each, and the rotatable torsions in action order. Observations are
// never shared between an environment and its callers; environments
// hand out deep copies.
type Observation struct {
	Nodes        [][]float64
	Edges        [][2]int
	EdgeFeatures [][]float64
	Torsions     [][4]int
}

// NumNodes returns the number of nodes in the graph
func (o Observation) NumNodes() int { return len(o.Nodes) }

// NumTorsions returns the number of torsions in the graph
func (o Observation) NumTorsions() int { return len(o.Torsions) }

// NodeDim returns the width of a node feature row
func (o Observation) NodeDim() int {
	if len(o.Nodes) == 0 {
		return 0
	}
	return len(o.Nodes[0])
}

// EdgeDim returns the width of an edge feature row
func (o Observation) EdgeDim() int {
	if len(o.EdgeFeatures) == 0 {
		return 0
	}
	return len(o.EdgeFeatures[0])
}

// Validate returns an error describing whether the Observation is
// internally consistent
func (o Observation) Validate() error {
	if len(o.Edges) != len(o.EdgeFeatures) {
		return errors.Errorf("validate: %d edges with %d feature rows",
			len(o.Edges), len(o.EdgeFeatures))
	}
	for i, row := range o.Nodes {
		if len(row) != o.NodeDim() {
			return errors.Errorf("validate: node %d has %d features, "+
				"expected %d", i, len(row), o.NodeDim())
		}
	}
	for i, row := range o.EdgeFeatures {
		if len(row) != o.EdgeDim() {
			return errors.Errorf("validate: edge %d has %d features, "+
				"expected %d", i, len(row), o.EdgeDim())
		}
	}

	n := len(o.Nodes)
	for i, e := range o.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n {
			return errors.Errorf("validate: edge %d (%d-%d) out of range",
				i, e[0], e[1])
		}
	}
	for i, t := range o.Torsions {
		for _, a := range t {
			if a < 0 || a >= n {
				return errors.Errorf("validate: torsion %d references atom %d "+
					"out of range", i, a)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the Observation
func (o Observation) Clone() Observation {
	return Observation{
		Nodes:        cloneRows(o.Nodes),
		Edges:        append([][2]int(nil), o.Edges...),
		EdgeFeatures: cloneRows(o.EdgeFeatures),
		Torsions:     append([][4]int(nil), o.Torsions...),
	}
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
