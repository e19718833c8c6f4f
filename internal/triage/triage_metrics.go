package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal         prometheus.Counter
	RunDuration       prometheus.Histogram
	RunBatchSize      prometheus.Histogram
	IncidentsTotal    *prometheus.CounterVec
	DecisionsTotal    *prometheus.CounterVec
	ClassifyCalls     *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	ApplyDuration     *prometheus.HistogramVec
	ApplyRetriesTotal prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotriage_runs_total",
			Help: "Total triage runs started.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotriage_run_duration_seconds",
			Help:    "Duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}),
		RunBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotriage_run_batch_size",
			Help:    "Incidents fetched per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. ~512
		}),
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotriage_incidents_total",
			Help: "Incidents processed by terminal outcome.",
		}, []string{"outcome"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotriage_decisions_total",
			Help: "Decisions made by action.",
		}, []string{"action"}),
		ClassifyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotriage_classify_calls_total",
			Help: "Reasoning backend calls by result.",
		}, []string{"result"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotriage_classify_duration_seconds",
			Help:    "Duration of individual reasoning backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}),
		ApplyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autotriage_apply_duration_seconds",
			Help:    "Duration of decision application in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}, []string{"outcome"}),
		ApplyRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotriage_apply_retries_total",
			Help: "Total retried case-management update attempts.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunBatchSize,
		m.IncidentsTotal,
		m.DecisionsTotal,
		m.ClassifyCalls,
		m.ClassifyDuration,
		m.ApplyDuration,
		m.ApplyRetriesTotal,
	)

	return m
}

// PipelineHooks returns hooks that feed the pipeline-level metrics.
func (m *Metrics) PipelineHooks() PipelineHooks {
	return PipelineHooks{
		OnDecision: func(action Action) {
			m.DecisionsTotal.WithLabelValues(string(action)).Inc()
		},
		OnIncident: func(outcome Outcome) {
			label := string(outcome)
			if label == "" {
				label = "malformed"
			}
			m.IncidentsTotal.WithLabelValues(label).Inc()
		},
		OnClassify: func(duration float64, failed bool) {
			result := "ok"
			if failed {
				result = "error"
			}
			m.ClassifyCalls.WithLabelValues(result).Inc()
			m.ClassifyDuration.Observe(duration)
		},
		OnRun: func(rep *Report) {
			m.RunsTotal.Inc()
			m.RunDuration.Observe(rep.Duration)
			m.RunBatchSize.Observe(float64(rep.Fetched))
		},
	}
}

// ExecutorHooks returns hooks that feed the executor-level metrics.
func (m *Metrics) ExecutorHooks() ExecutorHooks {
	return ExecutorHooks{
		OnApply: func(outcome Outcome, _ int, duration float64) {
			m.ApplyDuration.WithLabelValues(string(outcome)).Observe(duration)
		},
		OnRetry: func() {
			m.ApplyRetriesTotal.Inc()
		},
	}
}
