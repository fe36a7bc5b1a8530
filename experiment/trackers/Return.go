// Package trackers implements Trackers of per-episode statistics
package trackers

import (
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/tracker"
	"k8s.io/klog/v2"
)

// Return tracks and saves the episodic return of every environment of
// a vectorized pool. Rewards are accumulated per slot and the return
// of a slot is cached when its episode ends.
//
// An episode must finish for its return to be saved. If the number of
// slots changes, as after a curriculum level change, the unfinished
// episodes are dropped.
type Return struct {
	current  []float64
	returns  []float64
	filename string
}

// NewReturn creates and returns a new *Return Tracker which saves to
// filename
func NewReturn(filename string) *Return {
	return &Return{filename: filename}
}

var _ tracker.Tracker = (*Return)(nil)

// Track adds the rewards of one step of every slot
func (r *Return) Track(results []vecenv.Result) {
	if len(r.current) != len(results) {
		if len(r.current) != 0 {
			klog.V(2).Infof("return: slot count changed from %d to %d, "+
				"dropping unfinished episodes", len(r.current), len(results))
		}
		r.current = make([]float64, len(results))
	}

	for i, res := range results {
		r.current[i] += res.Reward
		if res.Done {
			r.returns = append(r.returns, r.current[i])
			r.current[i] = 0
		}
	}
}

// Returns returns the returns of the episodes finished so far, in the
// order they finished
func (r *Return) Returns() []float64 {
	return append([]float64(nil), r.returns...)
}

// Save saves the episodic returns to disk
func (r *Return) Save() error {
	return tracker.SaveData(r.filename, r.returns)
}
