package network

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/conformerrl/graphbatch"
	G "gorgonia.org/gorgonia"
)

// Inputs holds a batch of graphs and its helper matrices as input nodes
// of one expression graph. The Actor and Critic share the Inputs of a
// graph.
type Inputs struct {
	batch *graphbatch.Batched

	Nodes *G.Node // (nodes x node features)
	Edges *G.Node // (edges x edge features)

	Gather     *G.Node // (edges x nodes)
	Aggregate  *G.Node // (nodes x edges)
	Membership *G.Node // (graphs x nodes)
	Broadcast  *G.Node // (nodes x graphs)

	TorsionSelect    [4]*G.Node // (torsions x nodes)
	TorsionBroadcast *G.Node    // (torsions x graphs)
	TorsionSum       *G.Node    // (graphs x torsions)
}

// NewInputs adds batch to the graph of b. Every graph of the batch must
// have at least one edge and one torsion.
func NewInputs(b *Binder, batch *graphbatch.Batched) (*Inputs, error) {
	if batch.NumEdges() == 0 || batch.EdgeFeatures == nil {
		return nil, errors.New("newInputs: batch has no edges")
	}
	for i, n := range batch.TorsionCounts {
		if n == 0 {
			return nil, errors.Errorf("newInputs: graph %d has no torsions", i)
		}
	}

	in := &Inputs{
		batch:            batch,
		Nodes:            b.Input(batch.Nodes, "nodes"),
		Edges:            b.Input(batch.EdgeFeatures, "edges"),
		Gather:           b.Input(batch.Gather(), "gather"),
		Aggregate:        b.Input(batch.MeanAggregate(), "aggregate"),
		Membership:       b.Input(batch.Membership(), "membership"),
		Broadcast:        b.Input(batch.Broadcast(), "broadcast"),
		TorsionBroadcast: b.Input(batch.TorsionBroadcast(), "torsionBroadcast"),
		TorsionSum:       b.Input(batch.TorsionSum(), "torsionSum"),
	}
	for k := range in.TorsionSelect {
		in.TorsionSelect[k] = b.Input(batch.TorsionSelect(k), "torsionSelect")
	}
	return in, nil
}

// Batch returns the batch the Inputs were built from
func (in *Inputs) Batch() *graphbatch.Batched { return in.batch }
