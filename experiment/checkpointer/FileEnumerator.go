package checkpointer

import (
	"fmt"
	"strings"
)

// fileEnumerator enumerates filenames
type fileEnumerator struct {
	i         int
	name      string
	extension string
}

// next returns the name of the next consecutive enumerated file
func (f *fileEnumerator) next() string {
	f.i++
	return fmt.Sprintf("%v-%v%v", f.name, f.i, f.extension)
}

// FilenameEnumerator returns a function which returns filenames with a
// counter suffix. The first call uses start+1 as the suffix and each
// later call one more than the previous. The extension may be given
// with or without its leading dot.
func FilenameEnumerator(start int, filename, extension string) func() string {
	enum := fileEnumerator{i: start, name: filename, extension: dotted(extension)}
	return enum.next
}

func dotted(extension string) string {
	if extension == "" || strings.HasPrefix(extension, ".") {
		return extension
	}
	return "." + extension
}
