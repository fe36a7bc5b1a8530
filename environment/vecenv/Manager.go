// Package vecenv implements a vectorized environment: a fixed size
// pool of environments that are reset and stepped together.
package vecenv

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/environment"
	"github.com/samuelfneumann/conformerrl/timestep"
)

// Result is the outcome of stepping one slot of a Manager
type Result struct {
	timestep.TimeStep

	// Done is true for exactly the step on which the slot's episode
	// ended. The TimeStep then carries the terminal reward and the
	// first observation of the next episode, with the terminal
	// observation in Info.Terminal.
	Done bool
}

// Manager holds N environments in stable slots. Slot i of every
// batched result corresponds to environment i.
//
// When concurrency is enabled, environments are stepped in parallel
// goroutines, at most limit at a time. Environments never share state,
// so the only synchronization needed is waiting for the whole batch.
type Manager struct {
	envs        []environment.Environment
	concurrency bool
	limit       int
}

// New returns a new Manager over envs. A limit of zero bounds the
// number of parallel environment steps by GOMAXPROCS.
func New(envs []environment.Environment, concurrency bool,
	limit int) (*Manager, error) {
	if len(envs) == 0 {
		return nil, errors.New("new: manager needs at least one environment")
	}
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Manager{
		envs:        append([]environment.Environment(nil), envs...),
		concurrency: concurrency,
		limit:       limit,
	}, nil
}

// NumEnvs returns the number of environment slots
func (m *Manager) NumEnvs() int { return len(m.envs) }

// Env returns the environment in slot i
func (m *Manager) Env(i int) environment.Environment { return m.envs[i] }

// ResetAll resets every environment and returns their first TimeSteps
func (m *Manager) ResetAll(ctx context.Context) ([]timestep.TimeStep, error) {
	steps := make([]timestep.TimeStep, len(m.envs))
	err := m.forEach(ctx, func(ctx context.Context, i int) error {
		ts, err := m.envs[i].Reset(ctx)
		if err != nil {
			return errors.Wrapf(err, "resetting slot %d", i)
		}
		steps[i] = ts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// Step takes action i in environment i. Environments whose episodes
// end are reset before Step returns. Every action is validated first,
// so a wrong number of actions or an invalid action steps no
// environment.
func (m *Manager) Step(ctx context.Context, actions []mat.Vector) ([]Result,
	error) {
	if len(actions) != len(m.envs) {
		return nil, errors.Wrapf(environment.ErrInvalidAction, "step: got %d "+
			"actions for %d environments", len(actions), len(m.envs))
	}

	for i, a := range actions {
		if err := m.envs[i].ValidateAction(a); err != nil {
			return nil, errors.Wrapf(err, "step: slot %d", i)
		}
	}

	results := make([]Result, len(m.envs))
	err := m.forEach(ctx, func(ctx context.Context, i int) error {
		ts, done, err := m.envs[i].Step(ctx, actions[i])
		if err != nil {
			return errors.Wrapf(err, "stepping slot %d", i)
		}

		if done {
			terminal := ts.Observation
			next, err := m.envs[i].Reset(ctx)
			if err != nil {
				return errors.Wrapf(err, "auto-resetting slot %d", i)
			}
			ts.Observation = next.Observation
			ts.Info.Terminal = &terminal
			klog.V(2).Infof("slot %d: episode ended after %d steps", i,
				ts.Number)
		}
		results[i] = Result{TimeStep: ts, Done: done}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Observations returns the current observation of every environment
func (m *Manager) Observations() ([]timestep.Observation, error) {
	out := make([]timestep.Observation, len(m.envs))
	for i, env := range m.envs {
		obs, err := env.Observation()
		if err != nil {
			return nil, errors.Wrapf(err, "observing slot %d", i)
		}
		out[i] = obs
	}
	return out, nil
}

// Replace swaps the pool of environments for envs, resets them and
// returns their first TimeSteps. The number of slots may change.
func (m *Manager) Replace(ctx context.Context,
	envs []environment.Environment) ([]timestep.TimeStep, error) {
	if len(envs) == 0 {
		return nil, errors.New("replace: manager needs at least one " +
			"environment")
	}
	m.envs = append([]environment.Environment(nil), envs...)
	return m.ResetAll(ctx)
}

// forEach calls f for every slot, in parallel if concurrency is enabled
func (m *Manager) forEach(ctx context.Context,
	f func(context.Context, int) error) error {
	if !m.concurrency {
		for i := range m.envs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.limit)
	for i := range m.envs {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return f(gctx, i)
		})
	}
	return g.Wait()
}
