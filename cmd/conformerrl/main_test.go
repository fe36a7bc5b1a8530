package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/agent/a2c"
	"github.com/samuelfneumann/conformerrl/environment/envconfig"
	"github.com/samuelfneumann/conformerrl/solver"
)

func TestLoadConfigRoundTrip(t *testing.T) {
	c, err := defaultConfig()
	require.NoError(t, err)
	data, err := json.MarshalIndent(c, "", "  ")
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "experiment.json")
	require.NoError(t, os.WriteFile(filename, data, 0o644))

	loaded, err := loadConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, c.Settings, loaded.Settings)
	assert.Equal(t, c.Seed, loaded.Seed)
	assert.Equal(t, c.Molecule, loaded.Molecule)
	assert.Equal(t, envconfig.GibbsEnv, loaded.Train.EnvID)
	assert.Equal(t, c.Train.NumEnvs, loaded.Train.NumEnvs)

	assert.Equal(t, agent.A2CGNN, loaded.Agent.Type)
	ac, ok := loaded.Agent.Config.(a2c.Config)
	require.True(t, ok)
	assert.Equal(t, solver.Adam, ac.Solver.Type)
	assert.Equal(t, 128, ac.Hidden)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	filename := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(filename,
		[]byte(`{"Type": "OnlineExperiment"}`), 0o644))
	_, err = loadConfig(filename)
	assert.Error(t, err)
}

func TestDefaultConfigCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"default-config"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "OnlineExperiment")
	assert.Contains(t, out.String(), string(agent.A2CGNN))
}
