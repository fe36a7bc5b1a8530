package solver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestConstructors(t *testing.T) {
	adam, err := NewAdam(1e-3, 1e-5, 0.9, 0.999, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, Adam, adam.Type)
	assert.IsType(t, &G.AdamSolver{}, adam.Solver)

	vanilla, err := NewVanilla(0.1, 4, -1)
	require.NoError(t, err)
	assert.Equal(t, Vanilla, vanilla.Type)
	assert.IsType(t, &G.VanillaSolver{}, vanilla.Solver)

	rms, err := NewDefaultRMSProp(0.01, 2)
	require.NoError(t, err)
	assert.Equal(t, RMSProp, rms.Type)
	assert.IsType(t, &G.RMSPropSolver{}, rms.Solver)
}

func TestInvalidConfigs(t *testing.T) {
	_, err := NewAdam(0, 1e-5, 0.9, 0.999, 1, 5)
	assert.Error(t, err)
	_, err = NewAdam(1e-3, 1e-5, 1, 0.999, 1, 5)
	assert.Error(t, err)
	_, err = NewVanilla(0.1, 0, -1)
	assert.Error(t, err)
	_, err = NewRMSProp(0.1, 1e-8, 1, 1, -1)
	assert.Error(t, err)
}

func TestCloneDoesNotShareState(t *testing.T) {
	s, err := NewDefaultAdam(1e-3, 1)
	require.NoError(t, err)
	c := s.Clone()
	assert.Equal(t, s.Config, c.Config)
	assert.NotSame(t, s.Solver, c.Solver)

	old := s.Solver
	s.Reset()
	assert.NotSame(t, old, s.Solver)
}

func TestJSONRoundTrip(t *testing.T) {
	s, err := NewAdam(1e-3, 1e-5, 0.9, 0.99, 2, -1)
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Solver
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Adam, decoded.Type)
	assert.Equal(t, s.Config, decoded.Config)
	assert.NotNil(t, decoded.Solver)
}

func TestUnmarshalLowerCaseKeys(t *testing.T) {
	data := []byte(`{"type": "Vanilla", "config": {"stepsize": 0.5, "batch": 3}}`)
	var s Solver
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, Vanilla, s.Type)
	assert.Equal(t, &VanillaConfig{StepSize: 0.5, Batch: 3}, s.Config)
}

func TestUnmarshalErrors(t *testing.T) {
	var s Solver
	assert.Error(t, json.Unmarshal([]byte(`{"Config": {}}`), &s))
	assert.Error(t, json.Unmarshal([]byte(`{"Type": "Nesterov"}`), &s))
	assert.Error(t, json.Unmarshal(
		[]byte(`{"Type": "Adam", "Config": {"StepSize": -1, "Batch": 1}}`), &s))
}
