package main

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/samuelfneumann/conformerrl/agent"
	"github.com/samuelfneumann/conformerrl/agent/a2c"
	"github.com/samuelfneumann/conformerrl/environment/envconfig"
	"github.com/samuelfneumann/conformerrl/experiment"
	"github.com/samuelfneumann/conformerrl/molecule"
)

// envPrefix prefixes environment variables that override config keys,
// e.g. CONFORMERRL_SEED or CONFORMERRL_SETTINGS_MAXSTEPS
const envPrefix = "CONFORMERRL"

// loadConfig reads an experiment configuration from a JSON or YAML
// file. Keys are matched case-insensitively.
func loadConfig(filename string) (experiment.Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return experiment.Config{}, errors.Wrapf(err, "loadConfig: reading %v",
			filename)
	}

	// The config types decode themselves from JSON, so the settings
	// take a round trip through it
	data, err := json.Marshal(v.AllSettings())
	if err != nil {
		return experiment.Config{}, errors.Wrap(err, "loadConfig")
	}
	var c experiment.Config
	if err := json.Unmarshal(data, &c); err != nil {
		return experiment.Config{}, errors.Wrap(err, "loadConfig")
	}
	return c, errors.Wrap(c.Validate(), "loadConfig")
}

// defaultConfig returns an experiment training the A2C agent on
// pentane with the Gibbs reward
func defaultConfig() (experiment.Config, error) {
	ac, err := a2c.DefaultConfig()
	if err != nil {
		return experiment.Config{}, err
	}

	train := envconfig.DefaultTask(envconfig.GibbsEnv)
	train.NumEnvs = 8
	train.Concurrency = true
	eval := train
	eval.NumEnvs = 4

	return experiment.Config{
		Type: experiment.OnlineExp,
		Settings: experiment.Settings{
			MaxSteps:     10000,
			EvalInterval: 100,
			EvalEpisodes: 4,
		},
		SaveInterval: 1000,
		Molecule:     molecule.Spec{Alkane: 5},
		Train:        train,
		Eval:         eval,
		Agent:        agent.NewTypedConfig(ac),
		Seed:         1,
		OutputDir:    "runs",
	}, nil
}
