package graphbatch

import (
	"gorgonia.org/tensor"
)

// The methods below build dense 0/1 (or averaging) matrices that
// express gathers and segment reductions over the batch as matrix
// products, which is how the networks move information between edges,
// nodes, torsions and graphs.

// Gather returns the (edges x nodes) matrix G with G[e, Src[e]] = 1, so
// that G x gathers the source node features of every edge.
func (b *Batched) Gather() *tensor.Dense {
	m := zeros(b.NumEdges(), b.NumNodes())
	data := m.Data().([]float64)
	n := b.NumNodes()
	for e, src := range b.Src {
		data[e*n+src] = 1
	}
	return m
}

// MeanAggregate returns the (nodes x edges) matrix A with
// A[Dst[e], e] = 1 / in-degree(Dst[e]), so that A m averages the
// messages m arriving at each node. Nodes without incoming edges
// receive zero.
func (b *Batched) MeanAggregate() *tensor.Dense {
	degree := make([]float64, b.NumNodes())
	for _, dst := range b.Dst {
		degree[dst]++
	}

	m := zeros(b.NumNodes(), b.NumEdges())
	data := m.Data().([]float64)
	e := b.NumEdges()
	for i, dst := range b.Dst {
		data[dst*e+i] = 1 / degree[dst]
	}
	return m
}

// Membership returns the (graphs x nodes) matrix M with M[g, i] = 1 if
// node i belongs to graph g.
func (b *Batched) Membership() *tensor.Dense {
	m := zeros(b.NumGraphs(), b.NumNodes())
	data := m.Data().([]float64)
	n := b.NumNodes()
	for i, g := range b.NodeOwner {
		data[g*n+i] = 1
	}
	return m
}

// Broadcast returns the (nodes x graphs) transpose of Membership, so
// that Broadcast v copies a per-graph row to every node of the graph.
func (b *Batched) Broadcast() *tensor.Dense {
	m := zeros(b.NumNodes(), b.NumGraphs())
	data := m.Data().([]float64)
	g := b.NumGraphs()
	for i, owner := range b.NodeOwner {
		data[i*g+owner] = 1
	}
	return m
}

// TorsionSelect returns the (torsions x nodes) matrix S with
// S[t, Torsions[t][k]] = 1, selecting atom k of every torsion.
func (b *Batched) TorsionSelect(k int) *tensor.Dense {
	if k < 0 || k > 3 {
		panic("torsionSelect: torsions have four atoms")
	}
	m := zeros(b.NumTorsions(), b.NumNodes())
	data := m.Data().([]float64)
	n := b.NumNodes()
	for t, tor := range b.Torsions {
		data[t*n+tor[k]] = 1
	}
	return m
}

// TorsionBroadcast returns the (torsions x graphs) matrix T with
// T[t, TorsionOwner[t]] = 1, so that T v copies a per-graph row to
// every torsion of the graph.
func (b *Batched) TorsionBroadcast() *tensor.Dense {
	m := zeros(b.NumTorsions(), b.NumGraphs())
	data := m.Data().([]float64)
	g := b.NumGraphs()
	for t, owner := range b.TorsionOwner {
		data[t*g+owner] = 1
	}
	return m
}

// TorsionSum returns the (graphs x torsions) transpose of
// TorsionBroadcast, so that TorsionSum v sums a per-torsion value over
// the torsions of each graph.
func (b *Batched) TorsionSum() *tensor.Dense {
	m := zeros(b.NumGraphs(), b.NumTorsions())
	data := m.Data().([]float64)
	t := b.NumTorsions()
	for i, owner := range b.TorsionOwner {
		data[owner*t+i] = 1
	}
	return m
}

func zeros(rows, cols int) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols),
		tensor.WithBacking(make([]float64, rows*cols)))
}
