package network

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Actor predicts Bins logits for each torsion of each environment. The
// features of a torsion are the memory of its environment concatenated
// with the embeddings of its four atoms.
type Actor struct {
	cfg    Config
	params *Params

	encoder encoder
	hidden  fcLayer
	logits  fcLayer
}

// NewActor returns a new Actor with weights drawn from init
func NewActor(cfg Config, init G.InitWFn) (*Actor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "newActor")
	}
	if cfg.Bins < 2 {
		return nil, errors.Errorf("newActor: need at least 2 bins, got %d",
			cfg.Bins)
	}

	p := NewParams()
	return &Actor{
		cfg:     cfg,
		params:  p,
		encoder: newEncoder(p, "actor", cfg, init),
		hidden: newFCLayer(p, "actor/hidden", 5*cfg.Hidden, cfg.Hidden,
			init, ReLU()),
		logits: newFCLayer(p, "actor/logits", cfg.Hidden, cfg.Bins, init,
			nil),
	}, nil
}

// Params implements the NeuralNet interface
func (a *Actor) Params() *Params { return a.params }

// Config implements the NeuralNet interface
func (a *Actor) Config() Config { return a.cfg }

// Hidden implements the NeuralNet interface
func (a *Actor) Hidden() int { return a.cfg.Hidden }

// Fwd implements the NeuralNet interface. The output is a
// (torsions x bins) matrix of logits, with the torsions of all
// environments in batch order.
func (a *Actor) Fwd(b *Binder, in *Inputs, state StateNodes) (*G.Node,
	StateNodes, error) {
	nodes, next, err := a.encoder.fwd(b, in, state)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "actor")
	}

	features := make(G.Nodes, 0, 5)
	features = append(features, G.Must(G.Mul(in.TorsionBroadcast, next.H)))
	for _, sel := range in.TorsionSelect {
		features = append(features, G.Must(G.Mul(sel, nodes)))
	}
	x, err := G.Concat(1, features...)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "actor")
	}

	x, err = a.hidden.fwd(b, x)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "actor")
	}
	x, err = a.logits.fwd(b, x)
	if err != nil {
		return nil, StateNodes{}, errors.Wrap(err, "actor")
	}
	return x, next, nil
}

// PadLogits splits a (torsions x bins) matrix of logits computed for
// batch into a (graphs x max torsions x bins) tensor and a validity
// mask. Padding entries are zero and masked out.
func PadLogits(logits *tensor.Dense, torsionCounts []int) (*tensor.Dense,
	[][]bool, error) {
	shape := logits.Shape()
	if len(shape) != 2 {
		return nil, nil, errors.Errorf("padLogits: expected a matrix, got "+
			"shape %v", shape)
	}
	total, maxCount := 0, 0
	for _, n := range torsionCounts {
		total += n
		if n > maxCount {
			maxCount = n
		}
	}
	if total != shape[0] {
		return nil, nil, errors.Errorf("padLogits: %d torsions for %d rows",
			total, shape[0])
	}

	bins := shape[1]
	src := logits.Data().([]float64)
	data := make([]float64, len(torsionCounts)*maxCount*bins)
	mask := make([][]bool, len(torsionCounts))
	row := 0
	for g, n := range torsionCounts {
		mask[g] = make([]bool, maxCount)
		for t := 0; t < n; t++ {
			mask[g][t] = true
			dst := (g*maxCount + t) * bins
			copy(data[dst:dst+bins], src[row*bins:(row+1)*bins])
			row++
		}
	}

	padded := tensor.New(
		tensor.WithShape(len(torsionCounts), maxCount, bins),
		tensor.WithBacking(data),
	)
	return padded, mask, nil
}
