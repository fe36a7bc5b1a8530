package checkpointer

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// nStep checkpoints every N optimizer steps
type nStep struct {
	interval int
	last     int
	object   Serializable

	// filename returns the name of the next file to save the object in.
	//
	// If each checkpoint should go to its own file with an incremented
	// suffix (e.g. agent-1.gob, agent-2.gob, ...), use
	// FilenameEnumerator. If the names do not matter but must differ,
	// use FileTimer:
	//
	//	n, err := NewNStep(10, object, FileTimer("agent", "gob"))
	filename func() string
}

// NewNStep returns a checkpointer that saves object every n optimizer
// steps. Parent directories of the generated filenames are created as
// needed.
func NewNStep(n int, object Serializable,
	filename func() string) (Checkpointer, error) {
	if n <= 0 {
		return nil, errors.Errorf("newNStep: interval must be positive, "+
			"got %d", n)
	}
	if object == nil || filename == nil {
		return nil, errors.New("newNStep: object and filename must be set")
	}
	return &nStep{
		interval: n,
		last:     -1,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the object if step is a positive multiple of the
// interval. A step is saved at most once.
func (n *nStep) Checkpoint(step int) error {
	if step <= 0 || step%n.interval != 0 || step == n.last {
		return nil
	}

	name := n.filename()
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "checkpoint")
		}
	}

	file, err := os.Create(name)
	if err != nil {
		return errors.Wrap(err, "checkpoint")
	}
	if err := n.object.Save(file); err != nil {
		file.Close()
		return errors.Wrapf(err, "checkpoint: saving step %d", step)
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "checkpoint")
	}

	n.last = step
	klog.V(1).Infof("checkpoint: step %d saved to %v", step, name)
	return nil
}
