// Package network implements the graph neural networks that act on
// batches of molecular graphs.
//
// Network parameters live in a Params store of named tensors. Since
// Gorgonia expression graphs have static shapes and batches of
// molecules do not, every forward pass builds a new expression graph
// and binds the parameters into it with a Binder.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a recurrent graph neural network over a batch of
// molecular graphs
type NeuralNet interface {
	// Params returns the parameters of the network
	Params() *Params

	// Config returns the architecture of the network
	Config() Config

	// Hidden returns the width of the recurrent state
	Hidden() int

	// Fwd adds the forward pass of the network to the graph of b and
	// returns the output node and the next recurrent state. The
	// parameters of the network must be bound in b.
	Fwd(b *Binder, in *Inputs, state StateNodes) (*G.Node, StateNodes,
		error)
}
