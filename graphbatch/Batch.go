// Package graphbatch combines the variable size molecular graphs of a
// batch of environments into one graph whose node and edge features
// can be fed through a network in a single pass.
//
// Nodes of graph b occupy the contiguous block [Offsets[b],
// Offsets[b+1]) of the batched node features, in the same order as in
// the observation of graph b, so per-environment state stays aligned
// across a rollout.
package graphbatch

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/conformerrl/timestep"
)

// Batched is a batch of graphs concatenated into one graph
type Batched struct {
	Nodes        *tensor.Dense // Total nodes x node features
	EdgeFeatures *tensor.Dense // Total directed edges x edge features

	// Src and Dst are the source and destination node of each directed
	// edge. Every undirected edge of an observation appears in both
	// directions.
	Src, Dst []int

	NodeOwner []int // Graph that owns each node
	Offsets   []int // Node offset of each graph, plus the total

	Torsions      [][4]int // Torsions with node indices offset
	TorsionOwner  []int    // Graph that owns each torsion
	TorsionCounts []int    // Number of torsions of each graph
}

// Batch concatenates observations into a Batched graph. It also
// returns the offset torsions of each graph and the number of torsions
// of each graph.
//
// Observations with inconsistent feature widths are an error. An edge
// or torsion referencing a node outside of its own graph is a broken
// invariant of the caller and panics.
func Batch(observations []timestep.Observation) (*Batched, [][][4]int, []int,
	error) {
	if len(observations) == 0 {
		return nil, nil, nil, errors.New("batch: no observations")
	}

	nodeDim := observations[0].NodeDim()
	edgeDim := observations[0].EdgeDim()
	var numNodes, numEdges, numTorsions int
	for i, obs := range observations {
		if obs.NumNodes() == 0 {
			return nil, nil, nil, errors.Errorf("batch: observation %d has "+
				"no nodes", i)
		}
		if obs.NodeDim() != nodeDim {
			return nil, nil, nil, errors.Errorf("batch: observation %d has "+
				"node width %d, expected %d", i, obs.NodeDim(), nodeDim)
		}
		if len(obs.Edges) > 0 && obs.EdgeDim() != edgeDim {
			return nil, nil, nil, errors.Errorf("batch: observation %d has "+
				"edge width %d, expected %d", i, obs.EdgeDim(), edgeDim)
		}
		if len(obs.Edges) != len(obs.EdgeFeatures) {
			return nil, nil, nil, errors.Errorf("batch: observation %d has "+
				"%d edges and %d edge feature rows", i, len(obs.Edges),
				len(obs.EdgeFeatures))
		}
		for j, row := range obs.Nodes {
			if len(row) != nodeDim {
				return nil, nil, nil, errors.Errorf("batch: observation %d "+
					"node %d has width %d, expected %d", i, j, len(row),
					nodeDim)
			}
		}
		for j, row := range obs.EdgeFeatures {
			if len(row) != edgeDim {
				return nil, nil, nil, errors.Errorf("batch: observation %d "+
					"edge %d has width %d, expected %d", i, j, len(row),
					edgeDim)
			}
		}
		numNodes += obs.NumNodes()
		numEdges += len(obs.Edges)
		numTorsions += obs.NumTorsions()
	}

	b := &Batched{
		Src:           make([]int, 0, 2*numEdges),
		Dst:           make([]int, 0, 2*numEdges),
		NodeOwner:     make([]int, 0, numNodes),
		Offsets:       make([]int, 0, len(observations)+1),
		Torsions:      make([][4]int, 0, numTorsions),
		TorsionOwner:  make([]int, 0, numTorsions),
		TorsionCounts: make([]int, len(observations)),
	}
	nodes := make([]float64, 0, numNodes*nodeDim)
	edges := make([]float64, 0, 2*numEdges*edgeDim)
	perGraph := make([][][4]int, len(observations))

	offset := 0
	for g, obs := range observations {
		b.Offsets = append(b.Offsets, offset)
		n := obs.NumNodes()
		inBlock := func(i int) int {
			if i < 0 || i >= n {
				panic(fmt.Sprintf("batch: graph %d references node %d "+
					"outside of its %d nodes", g, i, n))
			}
			return i + offset
		}

		for _, row := range obs.Nodes {
			nodes = append(nodes, row...)
			b.NodeOwner = append(b.NodeOwner, g)
		}
		for e, pair := range obs.Edges {
			u, v := inBlock(pair[0]), inBlock(pair[1])
			b.Src = append(b.Src, u, v)
			b.Dst = append(b.Dst, v, u)
			edges = append(edges, obs.EdgeFeatures[e]...)
			edges = append(edges, obs.EdgeFeatures[e]...)
		}

		perGraph[g] = make([][4]int, 0, obs.NumTorsions())
		for _, t := range obs.Torsions {
			shifted := [4]int{inBlock(t[0]), inBlock(t[1]), inBlock(t[2]),
				inBlock(t[3])}
			b.Torsions = append(b.Torsions, shifted)
			b.TorsionOwner = append(b.TorsionOwner, g)
			perGraph[g] = append(perGraph[g], shifted)
		}
		b.TorsionCounts[g] = obs.NumTorsions()
		offset += n
	}
	b.Offsets = append(b.Offsets, offset)

	b.Nodes = tensor.New(tensor.WithShape(numNodes, nodeDim),
		tensor.WithBacking(nodes))
	if numEdges > 0 {
		b.EdgeFeatures = tensor.New(tensor.WithShape(2*numEdges, edgeDim),
			tensor.WithBacking(edges))
	}

	return b, perGraph, b.TorsionCounts, nil
}

// NumGraphs returns the number of graphs in the batch
func (b *Batched) NumGraphs() int { return len(b.Offsets) - 1 }

// NumNodes returns the total number of nodes in the batch
func (b *Batched) NumNodes() int { return len(b.NodeOwner) }

// NumEdges returns the total number of directed edges in the batch
func (b *Batched) NumEdges() int { return len(b.Src) }

// NumTorsions returns the total number of torsions in the batch
func (b *Batched) NumTorsions() int { return len(b.Torsions) }

// MaxTorsions returns the largest number of torsions of any graph
func (b *Batched) MaxTorsions() int {
	var m int
	for _, c := range b.TorsionCounts {
		if c > m {
			m = c
		}
	}
	return m
}

// NodeDim returns the width of the node features
func (b *Batched) NodeDim() int { return b.Nodes.Shape()[1] }

// EdgeDim returns the width of the edge features
func (b *Batched) EdgeDim() int {
	if b.EdgeFeatures == nil {
		return 0
	}
	return b.EdgeFeatures.Shape()[1]
}
