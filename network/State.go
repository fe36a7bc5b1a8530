package network

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrStateShape is returned when a recurrent state does not match the
// number of environments or the hidden width of a network
var ErrStateShape = errors.New("recurrent state shape mismatch")

// RecurrentState is the memory of one network for a batch of
// environments: one row of H and C per environment slot. States are
// plain tensors and never graph nodes, so no gradient flows through a
// stored state.
type RecurrentState struct {
	H, C *tensor.Dense
}

// NewRecurrentState returns a zero state for width environments
func NewRecurrentState(width, hidden int) RecurrentState {
	return RecurrentState{
		H: tensor.New(tensor.WithShape(width, hidden),
			tensor.WithBacking(make([]float64, width*hidden))),
		C: tensor.New(tensor.WithShape(width, hidden),
			tensor.WithBacking(make([]float64, width*hidden))),
	}
}

// Width returns the number of environment slots of the state
func (r RecurrentState) Width() int { return r.H.Shape()[0] }

// Hidden returns the hidden width of the state
func (r RecurrentState) Hidden() int { return r.H.Shape()[1] }

// Check returns ErrStateShape if the state is not width x hidden
func (r RecurrentState) Check(width, hidden int) error {
	if r.H == nil || r.C == nil {
		return errors.Wrap(ErrStateShape, "nil state")
	}
	for _, t := range []*tensor.Dense{r.H, r.C} {
		s := t.Shape()
		if len(s) != 2 || s[0] != width || s[1] != hidden {
			return errors.Wrapf(ErrStateShape, "expected (%d, %d), got %v",
				width, hidden, s)
		}
	}
	return nil
}

// ResetSlots zeroes the rows of environments that are done
func (r RecurrentState) ResetSlots(done []bool) error {
	if len(done) != r.Width() {
		return errors.Wrapf(ErrStateShape, "%d done flags for %d slots",
			len(done), r.Width())
	}
	hidden := r.Hidden()
	h := r.H.Data().([]float64)
	c := r.C.Data().([]float64)
	for i, d := range done {
		if !d {
			continue
		}
		for j := i * hidden; j < (i+1)*hidden; j++ {
			h[j] = 0
			c[j] = 0
		}
	}
	return nil
}

// Clone returns a deep copy of the state
func (r RecurrentState) Clone() RecurrentState {
	return RecurrentState{
		H: r.H.Clone().(*tensor.Dense),
		C: r.C.Clone().(*tensor.Dense),
	}
}

// Nodes adds the state to the graph of b as constant inputs
func (r RecurrentState) Nodes(b *Binder, prefix string) StateNodes {
	return StateNodes{
		H: b.Input(r.H.Clone().(*tensor.Dense), prefix+"H"),
		C: b.Input(r.C.Clone().(*tensor.Dense), prefix+"C"),
	}
}

// StateNodes is a recurrent state inside an expression graph
type StateNodes struct {
	H, C *G.Node
}

// Value copies the computed values of the nodes into a new
// RecurrentState. The graph must have been run.
func (s StateNodes) Value() (RecurrentState, error) {
	h, ok := s.H.Value().(*tensor.Dense)
	if !ok {
		return RecurrentState{}, errors.New("value: hidden state not computed")
	}
	c, ok := s.C.Value().(*tensor.Dense)
	if !ok {
		return RecurrentState{}, errors.New("value: cell state not computed")
	}
	return RecurrentState{
		H: h.Clone().(*tensor.Dense),
		C: c.Clone().(*tensor.Dense),
	}, nil
}

// AgentState holds the recurrent states of an actor and a critic
type AgentState struct {
	Actor, Critic RecurrentState
}

// NewAgentState returns a zero AgentState for width environments
func NewAgentState(width, actorHidden, criticHidden int) AgentState {
	return AgentState{
		Actor:  NewRecurrentState(width, actorHidden),
		Critic: NewRecurrentState(width, criticHidden),
	}
}

// Width returns the number of environment slots of the state
func (a AgentState) Width() int { return a.Actor.Width() }

// ResetSlots zeroes the rows of both states for environments that are
// done
func (a AgentState) ResetSlots(done []bool) error {
	if err := a.Actor.ResetSlots(done); err != nil {
		return err
	}
	return a.Critic.ResetSlots(done)
}

// Clone returns a deep copy of the state
func (a AgentState) Clone() AgentState {
	return AgentState{Actor: a.Actor.Clone(), Critic: a.Critic.Clone()}
}
