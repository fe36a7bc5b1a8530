package experiment

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samuelfneumann/conformerrl/agent"
)

const metricsPrefix = "conformerrl_"

// Loss terms reported under the term label of the loss gauge
const (
	termTotal   = "total"
	termPolicy  = "policy"
	termValue   = "value"
	termEntropy = "entropy"
)

var updateBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds the Prometheus collectors of a training run
type Metrics struct {
	evalReward        prometheus.Gauge
	evalEpisodeLength prometheus.Gauge
	trainReward       prometheus.Gauge
	loss              *prometheus.GaugeVec
	level             prometheus.Gauge
	optimizerSteps    prometheus.Counter
	episodes          *prometheus.CounterVec
	updateDuration    prometheus.Histogram
}

// NewMetrics creates the collectors of a training run and registers
// them with registerer, or with the default registerer if it is nil
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	m.evalReward = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "eval_mean_reward",
		Help: "Mean total reward per episode of the last evaluation.",
	})
	m.evalEpisodeLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "eval_mean_episode_length",
		Help: "Mean episode length of the last evaluation.",
	})
	m.trainReward = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "train_mean_reward",
		Help: "Mean per-step reward of the last rollout.",
	})
	m.loss = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricsPrefix + "loss",
		Help: "Loss of the last optimizer step, by term.",
	}, []string{"term"})
	m.level = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricsPrefix + "curriculum_level",
		Help: "Current curriculum level.",
	})
	m.optimizerSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "optimizer_steps_total",
		Help: "Total number of optimizer steps.",
	})
	m.episodes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "episodes_total",
		Help: "Total number of finished episodes, by mode.",
	}, []string{"mode"})
	m.updateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricsPrefix + "update_duration_seconds",
		Help:    "Histogram of optimizer step durations in seconds.",
		Buckets: updateBuckets,
	})

	collectors := []prometheus.Collector{
		m.evalReward,
		m.evalEpisodeLength,
		m.trainReward,
		m.loss,
		m.level,
		m.optimizerSteps,
		m.episodes,
		m.updateDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordUpdate records the statistics of one optimizer step
func (m *Metrics) RecordUpdate(stats agent.Stats, seconds float64) {
	m.optimizerSteps.Inc()
	m.updateDuration.Observe(seconds)
	m.trainReward.Set(stats.MeanReward)
	m.loss.WithLabelValues(termTotal).Set(stats.Loss)
	m.loss.WithLabelValues(termPolicy).Set(stats.PolicyLoss)
	m.loss.WithLabelValues(termValue).Set(stats.ValueLoss)
	m.loss.WithLabelValues(termEntropy).Set(stats.Entropy)
}

// RecordEpisodes counts n finished episodes of the given mode
func (m *Metrics) RecordEpisodes(mode string, n int) {
	if n > 0 {
		m.episodes.WithLabelValues(mode).Add(float64(n))
	}
}

// RecordEval records an evaluation summary
func (m *Metrics) RecordEval(s Summary) {
	m.evalReward.Set(s.MeanReward)
	m.evalEpisodeLength.Set(s.MeanEpisodeLength)
}

// RecordLevel records the current curriculum level
func (m *Metrics) RecordLevel(level int) {
	m.level.Set(float64(level))
}
