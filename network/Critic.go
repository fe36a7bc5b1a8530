package network

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Critic predicts one state value per environment from the memory of
// the encoder
type Critic struct {
	cfg    Config
	params *Params

	encoder encoder
	hidden  fcLayer
	value   fcLayer
}

// NewCritic returns a new Critic with weights drawn from init
func NewCritic(cfg Config, init G.InitWFn) (*Critic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "newCritic")
	}

	p := NewParams()
	return &Critic{
		cfg:     cfg,
		params:  p,
		encoder: newEncoder(p, "critic", cfg, init),
		hidden: newFCLayer(p, "critic/hidden", cfg.Hidden, cfg.Hidden, init,
			ReLU()),
		value: newFCLayer(p, "critic/value", cfg.Hidden, 1, init, nil),
	}, nil
}

// Params implements the NeuralNet interface
func (c *Critic) Params() *Params { return c.params }

// Config implements the NeuralNet interface
func (c *Critic) Config() Config { return c.cfg }

// Hidden implements the NeuralNet interface
func (c *Critic) Hidden() int { return c.cfg.Hidden }

// Fwd implements the NeuralNet interface. The output is a vector of one
// value per environment.
func (c *Critic) Fwd(b *Binder, in *Inputs, state StateNodes) (*G.Node,
	StateNodes, error) {
	_, next, err := c.encoder.fwd(b, in, state)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "critic")
	}

	out, err := c.hidden.fwd(b, next.H)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "critic")
	}
	out, err = c.value.fwd(b, out)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "critic")
	}

	width := in.Batch().NumGraphs()
	out, err = G.Reshape(out, tensor.Shape{width})
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "critic")
	}
	return out, next, nil
}
