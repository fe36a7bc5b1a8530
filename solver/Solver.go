// Package solver wraps Gorgonia Solvers so that they can be stored in
// JSON configuration files and checkpoints.
package solver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// configs creates an empty Config of each registered Type to decode
// into
var configs = map[Type]func() Config{
	Adam:    func() Config { return &AdamConfig{} },
	Vanilla: func() Config { return &VanillaConfig{} },
	RMSProp: func() Config { return &RMSPropConfig{} },
}

// Config describes the hyperparameters of a Gorgonia Solver and can
// create the Solvers it describes
type Config interface {
	Create() G.Solver
	Type() Type

	// Validate returns an error if the hyperparameters are invalid
	Validate() error
}

// Solver wraps a Gorgonia Solver together with the Config it was
// created from. Only the Config is serialized, so a decoded Solver
// starts without moment estimates.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// newSolver returns a new Solver, or an error if c is invalid
func newSolver(c Config) (*Solver, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "newSolver")
	}
	return &Solver{Solver: c.Create(), Type: c.Type(), Config: c}, nil
}

// Reset replaces the wrapped Gorgonia Solver with a new one, discarding
// any accumulated moment estimates
func (s *Solver) Reset() {
	s.Solver = s.Config.Create()
}

// Clone returns a Solver with the same Config and fresh state
func (s *Solver) Clone() *Solver {
	return &Solver{Solver: s.Config.Create(), Type: s.Type, Config: s.Config}
}

// String implements the fmt.Stringer interface
func (s *Solver) String() string {
	return fmt.Sprintf("{%v Solver: %+v}", s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaler interface. Keys are
// matched case-insensitively, since viper lower-cases them.
func (s *Solver) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	var name Type
	if err := json.Unmarshal(field(m, "Type"), &name); err != nil {
		return errors.Errorf("unmarshalJSON: missing solver type")
	}
	create, ok := configs[name]
	if !ok {
		return errors.Errorf("unmarshalJSON: unknown solver type %q", name)
	}

	config := create()
	if raw := field(m, "Config"); raw != nil {
		if err := json.Unmarshal(raw, config); err != nil {
			return errors.Wrapf(err, "unmarshalJSON: %v config", name)
		}
	}
	if err := config.Validate(); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	s.Type = name
	s.Config = config
	s.Solver = config.Create()
	return nil
}

func field(m map[string]json.RawMessage, name string) json.RawMessage {
	if v, ok := m[name]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}
