package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Binder binds one or more Params into a single expression graph. Every
// parameter becomes a learnable node that holds the parameter tensor
// as its value. Binder also adds input tensors to the graph under
// unique names; Gorgonia merges nodes that share a name and shape.
type Binder struct {
	g      *G.ExprGraph
	params []*Params
	nodes  map[string]*G.Node

	learnables G.Nodes
	inputs     int
}

// NewBinder binds params into g
func NewBinder(g *G.ExprGraph, params ...*Params) *Binder {
	b := &Binder{
		g:      g,
		params: params,
		nodes:  make(map[string]*G.Node),
	}

	for _, p := range params {
		for _, name := range p.names {
			if _, ok := b.nodes[name]; ok {
				panic(fmt.Sprintf("newBinder: parameter %v bound twice", name))
			}
			t := p.values[name]
			n := G.NewTensor(g, tensor.Float64, t.Dims(),
				G.WithShape(t.Shape()...), G.WithValue(t), G.WithName(name))
			b.nodes[name] = n
			b.learnables = append(b.learnables, n)
		}
	}
	return b
}

// Graph returns the expression graph of the Binder
func (b *Binder) Graph() *G.ExprGraph { return b.g }

// Param returns the node bound to the named parameter
func (b *Binder) Param(name string) *G.Node {
	n, ok := b.nodes[name]
	if !ok {
		panic(fmt.Sprintf("param: no parameter %v bound", name))
	}
	return n
}

// Learnables returns all bound parameter nodes in parameter order
func (b *Binder) Learnables() G.Nodes { return b.learnables }

// Model returns the learnables with their gradients
func (b *Binder) Model() []G.ValueGrad {
	model := make([]G.ValueGrad, len(b.learnables))
	for i, n := range b.learnables {
		model[i] = n
	}
	return model
}

// Input adds t to the graph as a non-learnable input node
func (b *Binder) Input(t *tensor.Dense, name string) *G.Node {
	b.inputs++
	name = fmt.Sprintf("%v_%d", name, b.inputs)
	return G.NewTensor(b.g, tensor.Float64, t.Dims(),
		G.WithShape(t.Shape()...), G.WithValue(t), G.WithName(name))
}

// Zeros adds a zero input node of the given shape to the graph
func (b *Binder) Zeros(name string, shape ...int) *G.Node {
	size := 1
	for _, s := range shape {
		size *= s
	}
	t := tensor.New(tensor.WithShape(shape...),
		tensor.WithBacking(make([]float64, size)))
	return b.Input(t, name)
}

// WriteBack copies the values of the bound parameter nodes back into
// the parameter tensors. Solvers update node values in place, which are
// usually the parameter tensors themselves, in which case this is a
// no-op.
func (b *Binder) WriteBack() {
	i := 0
	for _, p := range b.params {
		for _, name := range p.names {
			dst := p.values[name]
			src, ok := b.learnables[i].Value().(*tensor.Dense)
			i++
			if !ok || src == dst {
				continue
			}
			copy(dst.Data().([]float64), src.Data().([]float64))
		}
	}
}
