package agent

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/samuelfneumann/conformerrl/environment/vecenv"
)

// Type represents a specific type of an agent Config. Config's with
// this type can create Agents of the corresponding type.
type Type string

// A2CGNN is the type of synchronous advantage actor-critic agents with
// graph neural network actors and critics
const A2CGNN Type = "A2C-GNN"

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates an agent acting in the environments of m.
	// The environments must have been reset.
	CreateAgent(m *vecenv.Manager, seed uint64) (Agent, error)

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error

	// Type returns the type of agent the Config creates
	Type() Type
}

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be unmarshalled.
//
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var registeredTypes = make(map[Type]reflect.Type)

// Register registers an agent's Type with a concrete Config type so
// that upon deserialization of a TypedConfig, the Config is
// deserialized into the concrete type.
func Register(agentType Type, config Config) {
	registeredTypes[agentType] = reflect.TypeOf(config)
}

// TypedConfig implements functionality for typing a Config so that it
// can be deserialized into its concrete type without declaring a
// variable of its concrete type beforehand.
type TypedConfig struct {
	Type   Type
	Config Config
}

// NewTypedConfig types the argument Config
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface. Field names
// are matched case-insensitively.
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	var typeName Type
	if err := json.Unmarshal(field(m, "Type"), &typeName); err != nil {
		return errors.Wrap(err, "unmarshalJSON: type")
	}
	ty, found := registeredTypes[typeName]
	if !found {
		return errors.Errorf("unmarshalJSON: unregistered agent type %v",
			typeName)
	}

	value := reflect.New(ty)
	if raw := field(m, "Config"); raw != nil {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return errors.Wrap(err, "unmarshalJSON: config")
		}
	}

	t.Type = typeName
	t.Config = value.Elem().Interface().(Config)
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
