// Package curriculum implements a controller that moves training
// between molecules of increasing difficulty based on recent
// evaluation rewards.
package curriculum

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/molecule"
)

// Config describes a curriculum. Levels are ordered from easiest to
// hardest.
type Config struct {
	Levels []molecule.Spec

	// Window is the number of evaluation rewards averaged before the
	// level may change
	Window int

	Upper float64 // Advance when the window mean exceeds Upper
	Lower float64 // Step back when the window mean is below Lower

	AllowRegress bool
}

// Validate returns an error describing whether the Config is valid
func (c Config) Validate() error {
	if len(c.Levels) == 0 {
		return errors.New("curriculum: need at least one level")
	}
	if c.Window < 1 {
		return errors.Errorf("curriculum: window must be positive, got %d",
			c.Window)
	}
	if c.Lower > c.Upper {
		return errors.Errorf("curriculum: lower threshold %v above upper "+
			"threshold %v", c.Lower, c.Upper)
	}
	for i, l := range c.Levels {
		if err := l.Validate(); err != nil {
			return errors.Wrapf(err, "curriculum: level %d", i)
		}
	}
	return nil
}

// Controller is a state machine over curriculum levels. It keeps a
// rolling window of the most recent rewards it observed.
type Controller struct {
	config  Config
	configs []molecule.Config
	level   int
	window  []float64
}

// New returns a new Controller at the first level. The molecule of
// every level is built up front so that a broken level fails early.
func New(c Config) (*Controller, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	configs := make([]molecule.Config, len(c.Levels))
	for i, l := range c.Levels {
		mol, err := l.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "new: level %d", i)
		}
		configs[i] = mol
	}
	return &Controller{
		config:  c,
		configs: configs,
		window:  make([]float64, 0, c.Window),
	}, nil
}

// Level returns the index of the current level
func (c *Controller) Level() int { return c.level }

// NumLevels returns the number of levels
func (c *Controller) NumLevels() int { return len(c.configs) }

// CurrentConfig returns the molecule of the current level
func (c *Controller) CurrentConfig() molecule.Config {
	return c.configs[c.level]
}

// Observe records a mean reward and returns whether the level changed.
// The level only changes once the window is full, after which the
// window starts over.
func (c *Controller) Observe(meanReward float64) bool {
	if len(c.window) == c.config.Window {
		copy(c.window, c.window[1:])
		c.window = c.window[:len(c.window)-1]
	}
	c.window = append(c.window, meanReward)
	if len(c.window) < c.config.Window {
		return false
	}

	mean := stat.Mean(c.window, nil)
	switch {
	case mean > c.config.Upper && c.level < len(c.configs)-1:
		c.level++
	case mean < c.config.Lower && c.config.AllowRegress && c.level > 0:
		c.level--
	default:
		return false
	}

	klog.V(1).Infof("curriculum: window mean %.4f, moving to level %d (%v)",
		mean, c.level, c.configs[c.level].Name)
	c.window = c.window[:0]
	return true
}
