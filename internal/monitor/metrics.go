package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the grader.
type Metrics struct {
	Registry *prometheus.Registry

	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	ActiveEvaluations  prometheus.Gauge
	CaseResults        *prometheus.CounterVec
	AnalysisRuns       *prometheus.CounterVec
	SimilarityPairs    *prometheus.CounterVec
	SimilarityDuration *prometheus.HistogramVec
	PerfEstimates      *prometheus.CounterVec
	RiskyConstructs    *prometheus.CounterVec
	JobsProcessed      *prometheus.CounterVec
	ResultsDropped     prometheus.Counter
	CodeSizeBytes      prometheus.Histogram
	OpsRequests        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "evaluations_total",
				Help:      "Total number of submission evaluations by language and outcome.",
			},
			[]string{"language", "outcome"},
		),

		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Name:      "evaluation_duration_seconds",
				Help:      "Wall time of a full submission evaluation in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"language"},
		),

		ActiveEvaluations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grader",
				Name:      "active_evaluations",
				Help:      "Number of evaluations currently in progress.",
			},
		),

		CaseResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "case_results_total",
				Help:      "Test case results by final state.",
			},
			[]string{"state"},
		),

		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "analysis_runs_total",
				Help:      "Static analysis tool runs by profile and status.",
			},
			[]string{"profile", "status"},
		),

		SimilarityPairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "similarity",
				Name:      "pairs_total",
				Help:      "Similar pairs reported above threshold by method.",
			},
			[]string{"method"},
		),

		SimilarityDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Subsystem: "similarity",
				Name:      "run_duration_seconds",
				Help:      "Duration of similarity batch runs.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
			},
			[]string{"method"},
		),

		PerfEstimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "perf",
				Name:      "estimates_total",
				Help:      "Complexity estimates by selected model.",
			},
			[]string{"model"},
		),

		RiskyConstructs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Name:      "risky_constructs_total",
				Help:      "Risky constructs found in submitted code or output.",
			},
			[]string{"pattern"},
		),

		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "worker",
				Name:      "jobs_total",
				Help:      "Queued jobs processed by the worker by kind and status.",
			},
			[]string{"kind", "status"},
		),

		ResultsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "storage",
				Name:      "results_dropped_total",
				Help:      "Results dropped because the write buffer was full.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "grader",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OpsRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grader",
				Subsystem: "ops",
				Name:      "requests_total",
				Help:      "Requests to the operational HTTP endpoints by route and status code.",
			},
			[]string{"route", "code"},
		),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.ActiveEvaluations,
		m.CaseResults,
		m.AnalysisRuns,
		m.SimilarityPairs,
		m.SimilarityDuration,
		m.PerfEstimates,
		m.RiskyConstructs,
		m.JobsProcessed,
		m.ResultsDropped,
		m.CodeSizeBytes,
		m.OpsRequests,
	)

	return m
}

// RecordEvaluation records metrics for a finished evaluation.
func (m *Metrics) RecordEvaluation(language, outcome string, d time.Duration, codeSize int) {
	m.EvaluationsTotal.WithLabelValues(language, outcome).Inc()
	m.EvaluationDuration.WithLabelValues(language).Observe(d.Seconds())
	m.CodeSizeBytes.Observe(float64(codeSize))
}

func (m *Metrics) RecordCase(state string) {
	m.CaseResults.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordAnalysis(profile, status string) {
	m.AnalysisRuns.WithLabelValues(profile, status).Inc()
}

// RecordSimilarity records one batch run and the pairs it reported.
func (m *Metrics) RecordSimilarity(method string, pairs int, d time.Duration) {
	m.SimilarityPairs.WithLabelValues(method).Add(float64(pairs))
	m.SimilarityDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) RecordEstimate(model string) {
	m.PerfEstimates.WithLabelValues(model).Inc()
}

func (m *Metrics) RecordRiskyConstruct(pattern string) {
	m.RiskyConstructs.WithLabelValues(pattern).Inc()
}

func (m *Metrics) RecordJob(kind, status string) {
	m.JobsProcessed.WithLabelValues(kind, status).Inc()
}
