package distribution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gorgonia.org/tensor"
)

// padded returns logits for two environments with 2 and 1 torsions
// over 3 bins. The padded torsion has a huge logit on bin 0, which must
// never matter.
func padded(t *testing.T) *MaskedCategorical {
	t.Helper()
	logits := tensor.New(tensor.WithShape(2, 2, 3), tensor.WithBacking(
		[]float64{
			0, 0, 0,
			1, 2, 3,
			0, 5, 0,
			100, 0, 0,
		}))
	mask := [][]bool{{true, true}, {true, false}}
	d, err := NewMaskedCategorical(logits, mask, rand.NewSource(1))
	require.NoError(t, err)
	return d
}

func TestMaskedNeverSampled(t *testing.T) {
	d := padded(t)
	for i := 0; i < 500; i++ {
		a := d.Sample()
		require.Len(t, a, 2)
		assert.Equal(t, Masked, a[1][1])
		for _, row := range a {
			for tor, bin := range row {
				if bin != Masked {
					assert.True(t, bin >= 0 && bin < 3, "torsion %d", tor)
				}
			}
		}
	}
}

func TestModeSkipsMasked(t *testing.T) {
	d := padded(t)
	assert.Equal(t, [][]int{{0, 2}, {1, Masked}}, d.Mode())
}

func TestLogProbExcludesMasked(t *testing.T) {
	d := padded(t)

	lse := func(x ...float64) float64 {
		m := math.Inf(-1)
		for _, v := range x {
			m = math.Max(m, v)
		}
		var s float64
		for _, v := range x {
			s += math.Exp(v - m)
		}
		return m + math.Log(s)
	}

	lp, err := d.LogProb([][]int{{0, 2}, {1, 0}})
	require.NoError(t, err)
	want0 := (0 - lse(0, 0, 0)) + (3 - lse(1, 2, 3))
	want1 := 5 - lse(0, 5, 0)
	assert.InDelta(t, want0, lp[0], 1e-12)
	assert.InDelta(t, want1, lp[1], 1e-12)

	// Whatever action the padded torsion carries is ignored
	other, err := d.LogProb([][]int{{0, 2}, {1, Masked}})
	require.NoError(t, err)
	assert.Equal(t, lp, other)

	_, err = d.LogProb([][]int{{0, 3}, {1, 0}})
	assert.Error(t, err)
	_, err = d.LogProb([][]int{{0, 1}})
	assert.Error(t, err)
}

func TestEntropyExcludesMasked(t *testing.T) {
	d := padded(t)
	h := d.Entropy()

	// A uniform torsion over 3 bins contributes log 3
	assert.Greater(t, h[0], math.Log(3))
	assert.Less(t, h[0], 2*math.Log(3))

	single := tensor.New(tensor.WithShape(1, 1, 3),
		tensor.WithBacking([]float64{0, 5, 0}))
	s, err := NewMaskedCategorical(single, [][]bool{{true}},
		rand.NewSource(1))
	require.NoError(t, err)
	assert.InDelta(t, s.Entropy()[0], h[1], 1e-12)
}

func TestInvalidShapes(t *testing.T) {
	logits := tensor.New(tensor.WithShape(1, 2, 3),
		tensor.WithBacking(make([]float64, 6)))
	_, err := NewMaskedCategorical(logits, [][]bool{{false, false}},
		rand.NewSource(1))
	assert.Error(t, err)

	_, err = NewMaskedCategorical(logits, [][]bool{{true}},
		rand.NewSource(1))
	assert.Error(t, err)

	_, err = NewMaskedCategorical(logits, nil, rand.NewSource(1))
	assert.Error(t, err)
}
