// Package molecule implements the molecular input records, topologies
// and 3D conformations that conformer environments act on.
package molecule

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// BondType is the chemical type of a bond
type BondType int

const (
	Single BondType = iota
	Double
	Triple
	Aromatic
)

// String implements the fmt.Stringer interface
func (b BondType) String() string {
	switch b {
	case Single:
		return "Single"
	case Double:
		return "Double"
	case Triple:
		return "Triple"
	case Aromatic:
		return "Aromatic"
	}
	return "Unknown"
}

// Valid returns whether b is one of the known bond types
func (b BondType) Valid() bool { return b >= Single && b <= Aromatic }

// Atom describes a single atom (or united-atom bead) of a molecule
type Atom struct {
	Element string `json:"element"`
}

// Bond describes a bond between two atoms
type Bond struct {
	Begin      int      `json:"begin"`
	End        int      `json:"end"`
	Type       BondType `json:"type"`
	Conjugated bool     `json:"conjugated"`
	InRing     bool     `json:"in_ring"`
}

// Config is the immutable molecule input record consumed by conformer
// environments. It is produced by an external molecule generator (or
// the alkane builder in this package) and is never mutated after
// construction.
//
// Angles and Torsions may be left empty, in which case they are derived
// from the bond graph when the Topology is built. StandardEnergy is the
// reference energy used to normalize rewards; if nil it is estimated by
// sampling conformers when an environment is first reset.
type Config struct {
	Name           string       `json:"name"`
	Atoms          []Atom       `json:"atoms"`
	Bonds          []Bond       `json:"bonds"`
	Angles         [][3]int     `json:"angles,omitempty"`
	Torsions       [][4]int     `json:"torsions,omitempty"`
	Positions      [][3]float64 `json:"positions"`
	StandardEnergy *float64     `json:"standard_energy,omitempty"`
}

// NumAtoms returns the number of atoms in the molecule
func (c Config) NumAtoms() int {
	return len(c.Atoms)
}

// WithStandardEnergy returns a copy of the Config with its reference
// energy set to e.
func (c Config) WithStandardEnergy(e float64) Config {
	c.StandardEnergy = &e
	return c
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	n := len(c.Atoms)
	if n == 0 {
		return errors.Errorf("molecule %q has no atoms", c.Name)
	}
	if len(c.Positions) != n {
		return errors.Errorf("molecule %q: %d positions for %d atoms",
			c.Name, len(c.Positions), n)
	}

	inRange := func(i int) bool { return i >= 0 && i < n }
	for i, b := range c.Bonds {
		if !inRange(b.Begin) || !inRange(b.End) || b.Begin == b.End {
			return errors.Errorf("molecule %q: invalid bond %d (%d-%d)",
				c.Name, i, b.Begin, b.End)
		}
		if !b.Type.Valid() {
			return errors.Errorf("molecule %q: bond %d has unknown type %d",
				c.Name, i, b.Type)
		}
	}
	for i, a := range c.Angles {
		for _, idx := range a {
			if !inRange(idx) {
				return errors.Errorf("molecule %q: angle %d references "+
					"atom %d out of range", c.Name, i, idx)
			}
		}
	}
	for i, t := range c.Torsions {
		for _, idx := range t {
			if !inRange(idx) {
				return errors.Errorf("molecule %q: torsion %d references "+
					"atom %d out of range", c.Name, i, idx)
			}
		}
	}
	return nil
}

// LoadConfig reads a JSON encoded Config from a file
func LoadConfig(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading molecule config %q",
			filename)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "decoding molecule config %q",
			filename)
	}
	return c, c.Validate()
}

// Save writes the Config to a file as JSON
func (c Config) Save(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding molecule config")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0o644),
		"writing molecule config %q", filename)
}
