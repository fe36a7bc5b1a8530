// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuraiton files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Constant Type = "Constant"
	Gaussian Type = "Gaussian"
	Uniform  Type = "Uniform"
)

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn, or an error if c is invalid
func newInitWFn(c Config) (*InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "newInitWFn")
	}
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// configs creates an empty Config of each registered Type to decode
// into
var configs = map[Type]func() Config{
	GlorotU:  func() Config { return &GainConfig{kind: GlorotU} },
	GlorotN:  func() Config { return &GainConfig{kind: GlorotN} },
	HeU:      func() Config { return &GainConfig{kind: HeU} },
	HeN:      func() Config { return &GainConfig{kind: HeN} },
	Zeroes:   func() Config { return &ConstantConfig{} },
	Ones:     func() Config { return &ConstantConfig{Value: 1} },
	Constant: func() Config { return &ConstantConfig{} },
	Gaussian: func() Config { return &GaussianConfig{} },
	Uniform:  func() Config { return &UniformConfig{} },
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (w *InitWFn) InitWFn() G.InitWFn {
	return w.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	config, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return errors.Wrap(err, "unmarshalJSON")
	}

	i.Type = config.Type()
	i.Config = config
	i.initWFn = i.Config.Create()

	return nil
}

// unmarshalConfig decodes a Config into its concrete type, chosen by
// the type field. Field names are matched case-insensitively, since
// configuration loaders such as viper lower-case keys.
func unmarshalConfig(data []byte, typeJsonField,
	valueJsonField string) (Config, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	typeName, ok := field(m, typeJsonField).(string)
	if !ok {
		return nil, errors.Errorf("unmarshalConfig: missing %v field",
			typeJsonField)
	}
	create, found := configs[Type(typeName)]
	if !found {
		return nil, errors.Errorf("unmarshalConfig: unknown InitWFn "+
			"type %v", typeName)
	}
	value := create()

	if raw := field(m, valueJsonField); raw != nil {
		valueBytes, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(valueBytes, value); err != nil {
			return nil, err
		}
	}
	return reflect.ValueOf(value).Elem().Interface().(Config), nil
}

func field(m map[string]interface{}, name string) interface{} {
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

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type

	Validate() error
}
