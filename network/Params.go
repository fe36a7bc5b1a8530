package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Params is an ordered store of named parameter tensors. Networks keep
// their weights in a Params rather than in graph nodes because every
// forward pass builds a new expression graph: batches of molecules
// change shape from step to step and Gorgonia graphs do not.
//
// The order of parameters is the order in which they were added and
// never changes, so solvers that keep per-parameter state by position
// see the same parameter at the same position on every update.
type Params struct {
	names  []string
	values map[string]*tensor.Dense
}

// NewParams returns a new, empty Params
func NewParams() *Params {
	return &Params{values: make(map[string]*tensor.Dense)}
}

// Add adds a new parameter of the given shape initialized with init.
// It panics if the name is already taken.
func (p *Params) Add(name string, init G.InitWFn, shape ...int) *tensor.Dense {
	if _, ok := p.values[name]; ok {
		panic(fmt.Sprintf("add: parameter %v already exists", name))
	}

	backing := init(tensor.Float64, shape...).([]float64)
	t := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
	p.names = append(p.names, name)
	p.values[name] = t
	return t
}

// Get returns the parameter with the given name. It panics if there is
// no such parameter.
func (p *Params) Get(name string) *tensor.Dense {
	t, ok := p.values[name]
	if !ok {
		panic(fmt.Sprintf("get: no parameter %v", name))
	}
	return t
}

// Names returns the names of all parameters in order
func (p *Params) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of parameters
func (p *Params) Len() int { return len(p.names) }

// Size returns the total number of scalar weights
func (p *Params) Size() int {
	var n int
	for _, name := range p.names {
		n += p.values[name].Shape().TotalSize()
	}
	return n
}

// Clone returns a deep copy of the Params
func (p *Params) Clone() *Params {
	out := NewParams()
	for _, name := range p.names {
		out.names = append(out.names, name)
		out.values[name] = p.values[name].Clone().(*tensor.Dense)
	}
	return out
}

// Set copies the weights of source into p. Both must hold the same
// parameters with the same shapes.
func (p *Params) Set(source *Params) error {
	if source.Len() != p.Len() {
		return errors.Errorf("set: source has %d parameters, expected %d",
			source.Len(), p.Len())
	}
	for _, name := range p.names {
		src, ok := source.values[name]
		if !ok {
			return errors.Errorf("set: source has no parameter %v", name)
		}
		dst := p.values[name]
		if !src.Shape().Eq(dst.Shape()) {
			return errors.Errorf("set: parameter %v has shape %v, expected %v",
				name, src.Shape(), dst.Shape())
		}
		copy(dst.Data().([]float64), src.Data().([]float64))
	}
	return nil
}

type paramsGob struct {
	Names  []string
	Shapes [][]int
	Data   [][]float64
}

// GobEncode implements the gob.GobEncoder interface
func (p *Params) GobEncode() ([]byte, error) {
	enc := paramsGob{Names: p.names}
	for _, name := range p.names {
		t := p.values[name]
		enc.Shapes = append(enc.Shapes, []int(t.Shape().Clone()))
		enc.Data = append(enc.Data, t.Data().([]float64))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, errors.Wrap(err, "gobEncode")
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (p *Params) GobDecode(data []byte) error {
	var dec paramsGob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&dec); err != nil {
		return errors.Wrap(err, "gobDecode")
	}
	if len(dec.Shapes) != len(dec.Names) || len(dec.Data) != len(dec.Names) {
		return errors.New("gobDecode: corrupt parameters")
	}

	*p = *NewParams()
	for i, name := range dec.Names {
		p.names = append(p.names, name)
		p.values[name] = tensor.New(tensor.WithShape(dec.Shapes[i]...),
			tensor.WithBacking(dec.Data[i]))
	}
	return nil
}
