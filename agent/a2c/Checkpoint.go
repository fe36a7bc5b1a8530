package a2c

import (
	"encoding/gob"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/samuelfneumann/conformerrl/network"
)

// checkpoint is the gob encoded state of an A2C agent. The Config is
// stored as JSON since it holds typed solver and initializer configs.
type checkpoint struct {
	Config []byte
	Dims   Dims
	Actor  *network.Params
	Critic *network.Params
	Steps  int
}

// Save writes the parameters, configuration and update count of the
// agent to w. The recurrent state is not saved. Neither are the solver
// moment estimates: gorgonia keeps them, and Adam's iteration count, in
// unexported fields with no accessor, so a loaded agent resumes with a
// fresh solver of the saved configuration.
func (a *A2C) Save(w io.Writer) error {
	config, err := json.Marshal(a.config)
	if err != nil {
		return errors.Wrap(err, "save")
	}
	c := checkpoint{
		Config: config,
		Dims:   a.dims,
		Actor:  a.actor.Params(),
		Critic: a.critic.Params(),
		Steps:  a.steps,
	}
	if err := gob.NewEncoder(w).Encode(c); err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}

// Load reads an agent written by Save, acting in width environment
// slots with a zero recurrent state
func Load(r io.Reader, width int, seed uint64) (*A2C, error) {
	var c checkpoint
	if err := gob.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "load")
	}

	var config Config
	if err := json.Unmarshal(c.Config, &config); err != nil {
		return nil, errors.Wrap(err, "load: config")
	}
	a, err := New(config, c.Dims, width, seed)
	if err != nil {
		return nil, errors.Wrap(err, "load")
	}
	if c.Actor == nil || c.Critic == nil {
		return nil, errors.New("load: checkpoint has no parameters")
	}
	if err := a.actor.Params().Set(c.Actor); err != nil {
		return nil, errors.Wrap(err, "load: actor")
	}
	if err := a.critic.Params().Set(c.Critic); err != nil {
		return nil, errors.Wrap(err, "load: critic")
	}
	a.steps = c.Steps
	return a, nil
}
