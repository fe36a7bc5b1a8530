package network

import (
	"github.com/pkg/errors"
	"github.com/samuelfneumann/conformerrl/utils/op"
	G "gorgonia.org/gorgonia"
)

// scoreBound bounds attention scores so that the segment softmax of
// the pooling step cannot overflow
const scoreBound = 5.0

// encoder embeds a batch of molecular graphs. It runs Rounds rounds of
// edge-gated message passing with a GRU node update, pools each graph
// with iterative attention and advances a per-environment LSTM memory
// with the pooled vector.
type encoder struct {
	cfg Config

	embed fcLayer
	msg   fcLayer // x_src W + b
	edge  fcLayer // σ(edge U + c)
	root  fcLayer

	update gruCell
	pool   lstmCell
	memory lstmCell
}

func newEncoder(p *Params, prefix string, cfg Config,
	init G.InitWFn) encoder {
	h := cfg.Hidden
	return encoder{
		cfg:    cfg,
		embed:  newFCLayer(p, prefix+"/embed", cfg.NodeDim, h, init, ReLU()),
		msg:    newFCLayer(p, prefix+"/conv/msg", h, h, init, nil),
		edge:   newFCLayer(p, prefix+"/conv/edge", cfg.EdgeDim, h, init, Sigmoid()),
		root:   newFCLayer(p, prefix+"/conv/root", h, h, init, nil),
		update: newGRUCell(p, prefix+"/gru", h, h, init),
		pool:   newLSTMCell(p, prefix+"/set2set", 2*h, h, init),
		memory: newLSTMCell(p, prefix+"/memory", 2*h, h, init),
	}
}

// fwd returns the node embeddings after message passing and the
// advanced memory state
func (e encoder) fwd(b *Binder, in *Inputs, state StateNodes) (*G.Node,
	StateNodes, error) {
	batch := in.Batch()
	if batch.NodeDim() != e.cfg.NodeDim || batch.EdgeDim() != e.cfg.EdgeDim {
		return nil, StateNodes{}, errors.Errorf("fwd: expected node and "+
			"edge widths (%d, %d), got (%d, %d)", e.cfg.NodeDim, e.cfg.EdgeDim,
			batch.NodeDim(), batch.EdgeDim())
	}
	width := batch.NumGraphs()
	for _, n := range []*G.Node{state.H, state.C} {
		s := n.Shape()
		if len(s) != 2 || s[0] != width || s[1] != e.cfg.Hidden {
			return nil, StateNodes{}, errors.Wrapf(ErrStateShape,
				"expected (%d, %d), got %v", width, e.cfg.Hidden, s)
		}
	}

	out, err := e.embed.fwd(b, in.Nodes)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "fwd")
	}

	// The GRU hidden state starts from the embeddings on every step
	h := out
	for i := 0; i < e.cfg.Rounds; i++ {
		m, err := e.conv(b, in, out)
		if err != nil {
			return nil, StateNodes{}, errors.Wrapf(err, "fwd: round %d", i)
		}
		m = G.Must(G.Rectify(m))
		h = e.update.fwd(b, m, h)
		out = h
	}

	pooled := e.set2set(b, in, out)
	hNext, cNext := e.memory.fwd(b, pooled, state.H, state.C)
	return out, StateNodes{H: hNext, C: cNext}, nil
}

// conv is one round of edge-gated message passing with mean
// aggregation at the destination node and a root weight
func (e encoder) conv(b *Binder, in *Inputs, x *G.Node) (*G.Node, error) {
	src := G.Must(G.Mul(in.Gather, x))
	msg, err := e.msg.fwd(b, src)
	if err != nil {
		return nil, err
	}
	gate, err := e.edge.fwd(b, in.Edges)
	if err != nil {
		return nil, err
	}
	msg = G.Must(G.HadamardProd(msg, gate))
	agg := G.Must(G.Mul(in.Aggregate, msg))

	root, err := e.root.fwd(b, x)
	if err != nil {
		return nil, err
	}
	return G.Add(agg, root)
}

// set2set pools the nodes of each graph into one (2 x hidden) vector by
// PoolSteps rounds of attention driven by an LSTM query
func (e encoder) set2set(b *Binder, in *Inputs, x *G.Node) *G.Node {
	width := in.Batch().NumGraphs()
	hidden := e.cfg.Hidden

	qStar := b.Zeros("qStar", width, 2*hidden)
	h := b.Zeros("set2setH", width, hidden)
	c := b.Zeros("set2setC", width, hidden)
	for i := 0; i < e.cfg.PoolSteps; i++ {
		h, c = e.pool.fwd(b, qStar, h, c)

		// Score each node against the query of its graph
		q := G.Must(G.Mul(in.Broadcast, h))
		score := G.Must(G.Sum(G.Must(G.HadamardProd(x, q)), 1))
		score = op.Bounded(score, scoreBound)
		attention := op.SegmentSoftmax(score, in.Membership, in.Broadcast)

		weighted := G.Must(G.BroadcastHadamardProd(x, attention, nil,
			[]byte{1}))
		readout := G.Must(G.Mul(in.Membership, weighted))
		qStar = G.Must(G.Concat(1, h, readout))
	}
	return qStar
}
