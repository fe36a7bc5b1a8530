package checkpointer

import (
	"github.com/pkg/errors"
)

// Naming selects how checkpoint files are named
type Naming string

const (
	// Enumerated names files name-1.ext, name-2.ext, ...
	Enumerated Naming = "enumerated"

	// Timed names files by the UTC time they are written
	Timed Naming = "timed"
)

// Validate returns an error if n is not a known Naming. The empty
// Naming is Enumerated.
func (n Naming) Validate() error {
	switch n {
	case "", Enumerated, Timed:
		return nil
	}
	return errors.Errorf("no such checkpoint naming %q", n)
}

// Filenames returns a generator of checkpoint filenames with the given
// prefix and extension
func (n Naming) Filenames(filename, extension string) (func() string, error) {
	switch n {
	case "", Enumerated:
		return FilenameEnumerator(0, filename, extension), nil
	case Timed:
		return FileTimer(filename, extension, nil), nil
	}
	return nil, n.Validate()
}
