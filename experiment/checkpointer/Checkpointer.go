// Package checkpointer saves the state of a training run at fixed
// points of the run
package checkpointer

import "io"

// Serializable is an object that can write itself to a stream, such
// as a trained agent
type Serializable interface {
	Save(w io.Writer) error
}

// Checkpointer decides, given the number of optimizer steps taken so
// far, whether to save its object
type Checkpointer interface {
	Checkpoint(step int) error
}
