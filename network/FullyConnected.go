package network

import (
	G "gorgonia.org/gorgonia"
)

// fcLayer implements a fully connected layer whose weights live in a
// Params under the names <prefix>/W and <prefix>/b.
type fcLayer struct {
	weights string
	bias    string
	act     *Activation
}

// newFCLayer adds the weights of a new in -> out fully connected layer
// to p. The bias is initialized to zero.
func newFCLayer(p *Params, prefix string, in, out int, init G.InitWFn,
	act *Activation) fcLayer {
	l := fcLayer{weights: prefix + "/W", bias: prefix + "/b", act: act}
	p.Add(l.weights, init, in, out)
	p.Add(l.bias, G.Zeroes(), out)
	return l
}

// fwd adds the forward pass of the fcLayer to the graph of b
func (f fcLayer) fwd(b *Binder, x *G.Node) (*G.Node, error) {
	x, err := G.Mul(x, b.Param(f.weights))
	if err != nil {
		return nil, err
	}

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x, err = G.BroadcastAdd(x, b.Param(f.bias), nil, []byte{0})
	if err != nil {
		return nil, err
	}

	if f.act == nil {
		return x, nil
	}
	return f.act.fwd(x)
}

// linear computes x W without a bias
func linear(b *Binder, x *G.Node, weights string) *G.Node {
	return G.Must(G.Mul(x, b.Param(weights)))
}
