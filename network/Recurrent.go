package network

import (
	G "gorgonia.org/gorgonia"
)

// gate is one affine gate x W + h U + b of a recurrent cell
type gate struct {
	w, u, b string
}

func newGate(p *Params, prefix string, in, hidden int,
	init G.InitWFn) gate {
	g := gate{w: prefix + "/W", u: prefix + "/U", b: prefix + "/b"}
	p.Add(g.w, init, in, hidden)
	p.Add(g.u, init, hidden, hidden)
	p.Add(g.b, G.Zeroes(), hidden)
	return g
}

func (g gate) fwd(b *Binder, x, h *G.Node) *G.Node {
	sum := G.Must(G.Add(linear(b, x, g.w), linear(b, h, g.u)))
	return G.Must(G.BroadcastAdd(sum, b.Param(g.b), nil, []byte{0}))
}

// gruCell is a gated recurrent unit applied row-wise to a matrix of
// inputs and a matrix of hidden states:
//
//	z = σ(x Wz + h Uz + bz)
//	r = σ(x Wr + h Ur + br)
//	n = tanh(x Wn + bn + r ⊙ (h Un))
//	h' = n + z ⊙ (h - n)
type gruCell struct {
	z, r gate
	n    gate
}

func newGRUCell(p *Params, prefix string, in, hidden int,
	init G.InitWFn) gruCell {
	return gruCell{
		z: newGate(p, prefix+"/z", in, hidden, init),
		r: newGate(p, prefix+"/r", in, hidden, init),
		n: newGate(p, prefix+"/n", in, hidden, init),
	}
}

func (c gruCell) fwd(b *Binder, x, h *G.Node) *G.Node {
	z := G.Must(G.Sigmoid(c.z.fwd(b, x, h)))
	r := G.Must(G.Sigmoid(c.r.fwd(b, x, h)))

	hn := G.Must(G.HadamardProd(r, linear(b, h, c.n.u)))
	n := G.Must(G.Add(linear(b, x, c.n.w), hn))
	n = G.Must(G.BroadcastAdd(n, b.Param(c.n.b), nil, []byte{0}))
	n = G.Must(G.Tanh(n))

	diff := G.Must(G.Sub(h, n))
	return G.Must(G.Add(n, G.Must(G.HadamardProd(z, diff))))
}

// lstmCell is a long short-term memory cell applied row-wise:
//
//	i = σ(x Wi + h Ui + bi)     f = σ(x Wf + h Uf + bf)
//	g = tanh(x Wg + h Ug + bg)  o = σ(x Wo + h Uo + bo)
//	c' = f ⊙ c + i ⊙ g          h' = o ⊙ tanh(c')
type lstmCell struct {
	i, f, g, o gate
}

func newLSTMCell(p *Params, prefix string, in, hidden int,
	init G.InitWFn) lstmCell {
	return lstmCell{
		i: newGate(p, prefix+"/i", in, hidden, init),
		f: newGate(p, prefix+"/f", in, hidden, init),
		g: newGate(p, prefix+"/g", in, hidden, init),
		o: newGate(p, prefix+"/o", in, hidden, init),
	}
}

func (l lstmCell) fwd(b *Binder, x, h, c *G.Node) (*G.Node, *G.Node) {
	i := G.Must(G.Sigmoid(l.i.fwd(b, x, h)))
	f := G.Must(G.Sigmoid(l.f.fwd(b, x, h)))
	g := G.Must(G.Tanh(l.g.fwd(b, x, h)))
	o := G.Must(G.Sigmoid(l.o.fwd(b, x, h)))

	cNext := G.Must(G.Add(
		G.Must(G.HadamardProd(f, c)),
		G.Must(G.HadamardProd(i, g)),
	))
	hNext := G.Must(G.HadamardProd(o, G.Must(G.Tanh(cNext))))
	return hNext, cNext
}
