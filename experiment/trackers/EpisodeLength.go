package trackers

import (
	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/tracker"
)

// EpisodeLength tracks and saves the lengths of episodes in an
// experiment. An episode must finish for its length to be saved.
type EpisodeLength struct {
	lengths  []int
	filename string
}

// NewEpisodeLength returns a new EpisodeLength Tracker which saves to
// filename
func NewEpisodeLength(filename string) *EpisodeLength {
	return &EpisodeLength{filename: filename}
}

var _ tracker.Tracker = (*EpisodeLength)(nil)

// Track caches the length of every episode that ended on this step
func (e *EpisodeLength) Track(results []vecenv.Result) {
	for _, res := range results {
		if res.Done {
			e.lengths = append(e.lengths, res.Number)
		}
	}
}

// Lengths returns the lengths of the episodes finished so far
func (e *EpisodeLength) Lengths() []int {
	return append([]int(nil), e.lengths...)
}

// Save saves the episode lengths to disk
func (e *EpisodeLength) Save() error {
	return tracker.SaveData(e.filename, e.lengths)
}
