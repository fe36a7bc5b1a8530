package environment

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
)

func TestBinStarterStartsOnActionGrid(t *testing.T) {
	env := newTestEnv(t, 10)
	s, err := NewBinStarter(6, 3)
	require.NoError(t, err)
	env.SetStarter(s)

	for episode := 0; episode < 5; episode++ {
		_, err := env.Reset(context.Background())
		require.NoError(t, err)
		angles, err := env.TorsionAngles()
		require.NoError(t, err)
		for _, a := range angles {
			bin := math.Round((a + 180) / 60)
			assert.InDelta(t, 0, angleDiff(a, -180+60*bin), 1e-6)
		}
	}

	_, err = NewBinStarter(0, 1)
	assert.Error(t, err)
}

func TestEnergyLimitEndsEarly(t *testing.T) {
	env := newTestEnv(t, 10)
	env.AddEnder(NewEnergyLimit(r1.Interval{Min: -1, Max: 1}))
	_, err := env.Reset(context.Background())
	require.NoError(t, err)
	ts, done, err := env.Step(context.Background(),
		mat.NewVecDense(2, []float64{0, 0}))
	require.NoError(t, err)
	assert.False(t, done)
	assert.False(t, ts.Last())

	// The constant oracle sits at the reference energy, outside [1, 2]
	env = newTestEnv(t, 10)
	env.AddEnder(NewEnergyLimit(r1.Interval{Min: 1, Max: 2}))
	_, err = env.Reset(context.Background())
	require.NoError(t, err)
	ts, done, err = env.Step(context.Background(),
		mat.NewVecDense(2, []float64{0, 0}))
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, ts.Last())
	assert.Equal(t, Done, env.State())
}
