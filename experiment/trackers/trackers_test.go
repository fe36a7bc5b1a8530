package trackers

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/conformerrl/environment/vecenv"
	"github.com/samuelfneumann/conformerrl/experiment/tracker"
	"github.com/samuelfneumann/conformerrl/timestep"
)

func result(reward float64, n int, done bool) vecenv.Result {
	ts := timestep.New(timestep.Mid, reward, 1, timestep.Observation{}, n)
	return vecenv.Result{TimeStep: ts, Done: done}
}

func TestReturnPerSlot(t *testing.T) {
	r := NewReturn(filepath.Join(t.TempDir(), "return.gob"))
	r.Track([]vecenv.Result{result(1, 1, false), result(2, 1, true)})
	r.Track([]vecenv.Result{result(0.5, 2, true), result(4, 1, false)})
	assert.Equal(t, []float64{2, 1.5}, r.Returns())

	// A change of width drops the unfinished episode of slot 1
	r.Track([]vecenv.Result{result(1, 1, true)})
	assert.Equal(t, []float64{2, 1.5, 1}, r.Returns())

	require.NoError(t, r.Save())
	data, err := tracker.LoadData[float64](r.filename)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1.5, 1}, data)
}

func TestEpisodeLength(t *testing.T) {
	dir := t.TempDir()
	e := NewEpisodeLength(filepath.Join(dir, "sub", "length.gob"))
	e.Track([]vecenv.Result{result(0, 3, true), result(0, 3, false)})
	e.Track([]vecenv.Result{result(0, 1, false), result(0, 4, true)})
	assert.Equal(t, []int{3, 4}, e.Lengths())

	require.NoError(t, e.Save())
	data, err := tracker.LoadData[int](filepath.Join(dir, "sub", "length.gob"))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, data)

	_, err = tracker.LoadData[int](filepath.Join(dir, "missing.gob"))
	assert.Error(t, err)
}
