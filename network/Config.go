package network

import (
	"github.com/pkg/errors"
)

// Config describes the architecture shared by the Actor and Critic
type Config struct {
	NodeDim int // Width of node features
	EdgeDim int // Width of edge features
	Hidden  int // Width of node embeddings and recurrent state

	// Rounds is the number of message passing rounds
	Rounds int

	// PoolSteps is the number of attention steps of graph pooling
	PoolSteps int

	// Bins is the number of discrete rotation bins per torsion. It is
	// only used by the Actor.
	Bins int
}

// DefaultConfig returns the default architecture for observations with
// the given node and edge widths
func DefaultConfig(nodeDim, edgeDim, bins int) Config {
	return Config{
		NodeDim:   nodeDim,
		EdgeDim:   edgeDim,
		Hidden:    128,
		Rounds:    6,
		PoolSteps: 6,
		Bins:      bins,
	}
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	if c.NodeDim < 1 || c.EdgeDim < 1 {
		return errors.Errorf("network config: node and edge widths must be "+
			"positive, got %d and %d", c.NodeDim, c.EdgeDim)
	}
	if c.Hidden < 1 {
		return errors.Errorf("network config: hidden width must be "+
			"positive, got %d", c.Hidden)
	}
	if c.Rounds < 1 || c.PoolSteps < 1 {
		return errors.Errorf("network config: rounds and pool steps must "+
			"be positive, got %d and %d", c.Rounds, c.PoolSteps)
	}
	return nil
}
