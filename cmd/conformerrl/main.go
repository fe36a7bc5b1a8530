// Command conformerrl trains and evaluates agents that generate
// low-energy conformers of molecules
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/samuelfneumann/conformerrl/agent/a2c"
	"github.com/samuelfneumann/conformerrl/experiment"
)

type options struct {
	config      string
	runID       string
	metricsAddr string
	progress    bool
	checkpoint  string
	episodes    int
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	must.M(newRootCommand().ExecuteContext(ctx))
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "conformerrl",
		Short:        "Train agents to generate low-energy molecular conformers",
		SilenceUsage: true,
	}
	root.PersistentFlags().AddGoFlagSet(flag.CommandLine)
	root.PersistentFlags().StringVarP(&opts.config, "config", "c", "",
		"experiment configuration file (JSON or YAML)")

	train := &cobra.Command{
		Use:   "train",
		Short: "Run a training experiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd.Context(), opts)
		},
	}
	train.Flags().StringVar(&opts.runID, "run-id", "",
		"name of the output directory of the run, a random UUID if empty")
	train.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address, e.g. :9090")
	train.Flags().BoolVar(&opts.progress, "progress", false,
		"draw a progress bar")

	evaluate := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a checkpointed agent greedily",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvaluate(cmd.Context(), opts)
		},
	}
	evaluate.Flags().StringVar(&opts.checkpoint, "checkpoint", "",
		"checkpoint file written during training")
	evaluate.Flags().IntVar(&opts.episodes, "episodes", 0,
		"number of episodes, the configured EvalEpisodes if zero")

	defaults := &cobra.Command{
		Use:   "default-config",
		Short: "Print the default experiment configuration",
		Run: func(cmd *cobra.Command, _ []string) {
			c := must.M1(defaultConfig())
			data := must.M1(json.MarshalIndent(c, "", "  "))
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
		},
	}

	root.AddCommand(train, evaluate, defaults)
	return root
}

func configFrom(opts *options) (experiment.Config, error) {
	if opts.config == "" {
		klog.Info("no configuration file given, using defaults")
		return defaultConfig()
	}
	return loadConfig(opts.config)
}

func runTrain(ctx context.Context, opts *options) error {
	c, err := configFrom(opts)
	if err != nil {
		return err
	}
	runID := opts.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	klog.Infof("run %v: writing to %v", runID, c.OutputDir)

	var registerer prometheus.Registerer
	if opts.metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registerer = registry
		stop := serveMetrics(opts.metricsAddr, registry)
		defer stop()
	}

	var progress io.Writer
	if opts.progress {
		progress = os.Stdout
	}

	exp, err := c.Create(ctx, runID, registerer, progress)
	if err != nil {
		return err
	}

	runErr := exp.Run(ctx)
	if err := exp.Save(); err != nil {
		klog.Errorf("could not save tracked data: %v", err)
	}
	if errors.Is(runErr, context.Canceled) {
		klog.Info("interrupted")
		return nil
	}
	return runErr
}

func runEvaluate(ctx context.Context, opts *options) error {
	if opts.checkpoint == "" {
		return errors.New("evaluate: --checkpoint is required")
	}
	c, err := configFrom(opts)
	if err != nil {
		return err
	}
	if opts.episodes > 0 {
		c.EvalEpisodes = opts.episodes
	}
	if c.EvalEpisodes < 1 {
		c.EvalEpisodes = 1
	}
	c.EvalInterval = 1

	pools, err := c.Environments(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(opts.checkpoint)
	if err != nil {
		return errors.Wrap(err, "evaluate")
	}
	defer f.Close()
	a, err := a2c.Load(f, pools.Train.NumEnvs(), c.Seed)
	if err != nil {
		return err
	}

	o, err := experiment.NewOnline(a, pools.Train, pools.Eval, c.Settings)
	if err != nil {
		return err
	}
	summary, err := o.Evaluate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mean reward %.4f, mean episode length %.2f over %d "+
		"episodes\n", summary.MeanReward, summary.MeanEpisodeLength,
		summary.Episodes)
	return nil
}

// serveMetrics serves the metrics of registry on addr until the
// returned function is called
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry,
		promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux,
		ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("metrics server: %v", err)
		}
	}()
	klog.Infof("serving metrics on %v/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			klog.Errorf("metrics server: %v", err)
		}
	}
}
