package graphbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/conformerrl/timestep"
)

// chain returns the observation of a chain of n nodes with one torsion
// per inner bond
func chain(n int) timestep.Observation {
	obs := timestep.Observation{}
	for i := 0; i < n; i++ {
		obs.Nodes = append(obs.Nodes, []float64{float64(i), 0, 1})
	}
	for i := 0; i+1 < n; i++ {
		obs.Edges = append(obs.Edges, [2]int{i, i + 1})
		obs.EdgeFeatures = append(obs.EdgeFeatures, []float64{1, float64(i)})
	}
	for i := 0; i+3 < n; i++ {
		obs.Torsions = append(obs.Torsions, [4]int{i, i + 1, i + 2, i + 3})
	}
	return obs
}

func TestBatchInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		numGraphs := 1 + rng.Intn(5)
		obs := make([]timestep.Observation, numGraphs)
		sizes := make([]int, numGraphs)
		total := 0
		for i := range obs {
			sizes[i] = 4 + rng.Intn(8)
			total += sizes[i]
			obs[i] = chain(sizes[i])
		}

		b, perGraph, counts, err := Batch(obs)
		require.NoError(t, err)

		assert.Equal(t, total, b.NumNodes())
		assert.Equal(t, []int{total, 3}, []int(b.Nodes.Shape()))
		assert.Equal(t, numGraphs, b.NumGraphs())
		require.Len(t, perGraph, numGraphs)

		for g := 0; g < numGraphs; g++ {
			lo, hi := b.Offsets[g], b.Offsets[g+1]
			assert.Equal(t, sizes[g], hi-lo)
			assert.Equal(t, sizes[g]-3, counts[g])
			for _, tor := range perGraph[g] {
				for _, i := range tor {
					assert.GreaterOrEqual(t, i, lo)
					assert.Less(t, i, hi)
					assert.Equal(t, g, b.NodeOwner[i])
				}
			}
		}

		// Node features keep their order within each block
		data := b.Nodes.Data().([]float64)
		for g := 0; g < numGraphs; g++ {
			for i := 0; i < sizes[g]; i++ {
				assert.Equal(t, float64(i), data[3*(b.Offsets[g]+i)])
			}
		}

		// Every edge appears in both directions
		assert.Equal(t, 2*(total-numGraphs), b.NumEdges())
		for e := 0; e < b.NumEdges(); e += 2 {
			assert.Equal(t, b.Src[e], b.Dst[e+1])
			assert.Equal(t, b.Dst[e], b.Src[e+1])
		}
	}
}

func TestBatchMatrices(t *testing.T) {
	b, _, _, err := Batch([]timestep.Observation{chain(4), chain(5)})
	require.NoError(t, err)

	// Membership rows sum to block sizes; broadcast rows sum to one
	m := b.Membership().Data().([]float64)
	var first, second float64
	for i := 0; i < 9; i++ {
		first += m[i]
		second += m[9+i]
	}
	assert.Equal(t, 4.0, first)
	assert.Equal(t, 5.0, second)

	bc := b.Broadcast().Data().([]float64)
	for i := 0; i < 9; i++ {
		assert.Equal(t, 1.0, bc[2*i]+bc[2*i+1])
	}

	// Mean aggregation rows sum to one for nodes with incoming edges
	agg := b.MeanAggregate().Data().([]float64)
	e := b.NumEdges()
	for i := 0; i < b.NumNodes(); i++ {
		var sum float64
		for j := 0; j < e; j++ {
			sum += agg[i*e+j]
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}

	// Torsion selection picks the offset atoms
	sel := b.TorsionSelect(3).Data().([]float64)
	require.Equal(t, 3, b.NumTorsions())
	assert.Equal(t, 1.0, sel[0*9+3])
	assert.Equal(t, 1.0, sel[1*9+4+3])
	assert.Equal(t, 1.0, sel[2*9+4+4])

	tb := b.TorsionBroadcast().Data().([]float64)
	assert.Equal(t, []float64{1, 0, 0, 1, 0, 1}, tb)
	assert.Equal(t, 2, b.MaxTorsions())

	g := b.Gather().Data().([]float64)
	assert.Equal(t, 1.0, g[0*9+b.Src[0]])
}

func TestBatchErrors(t *testing.T) {
	_, _, _, err := Batch(nil)
	assert.Error(t, err)

	wide := chain(4)
	wide.Nodes[1] = []float64{0, 0, 0, 0}
	_, _, _, err = Batch([]timestep.Observation{chain(4), wide})
	assert.Error(t, err)

	other := chain(5)
	for i := range other.Nodes {
		other.Nodes[i] = append(other.Nodes[i], 1)
	}
	_, _, _, err = Batch([]timestep.Observation{chain(4), other})
	assert.Error(t, err)
}

func TestBatchInvariantViolationPanics(t *testing.T) {
	bad := chain(4)
	bad.Torsions = append(bad.Torsions, [4]int{0, 1, 2, 4})
	assert.Panics(t, func() {
		Batch([]timestep.Observation{chain(5), bad})
	})
}
