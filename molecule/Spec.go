package molecule

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
)

// Spec describes where a molecule Config comes from. Exactly one of
// File or Alkane should be set. Specs are JSON serializable and are
// used as curriculum levels and in task configurations.
type Spec struct {
	// File is the path to a JSON encoded Config
	File string `json:",omitempty"`

	// Alkane is the number of carbons of a generated alkane
	Alkane   int  `json:",omitempty"`
	Branched bool `json:",omitempty"`
	Seed     uint64
}

// Validate returns an error describing whether the Spec is valid
func (s Spec) Validate() error {
	if s.File == "" && s.Alkane == 0 {
		return errors.New("molecule spec: one of File or Alkane must be set")
	}
	if s.File != "" && s.Alkane != 0 {
		return errors.New("molecule spec: only one of File or Alkane may " +
			"be set")
	}
	return nil
}

// Build returns the molecule Config described by the Spec
func (s Spec) Build() (Config, error) {
	if err := s.Validate(); err != nil {
		return Config{}, err
	}

	if s.File != "" {
		return LoadConfig(s.File)
	}
	if s.Branched {
		rng := rand.New(rand.NewSource(s.Seed))
		return BranchedAlkane(s.Alkane, rng)
	}
	return Alkane(s.Alkane)
}
