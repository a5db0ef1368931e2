// Package app assembles the grading components from configuration for the
// CLI and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"submission-grader/internal/analysis"
	"submission-grader/internal/config"
	"submission-grader/internal/grader"
	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
	"submission-grader/internal/monitor"
	"submission-grader/internal/perf"
	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
	"submission-grader/internal/similarity"
)

// App holds the wired components. Encoder is nil when no embedding
// endpoint is configured.
type App struct {
	Invoker    sandbox.Invoker
	Runtimes   *runtime.Registry
	Profiles   *analysis.Registry
	Analyzer   *analysis.Analyzer
	Metrics    *metrics.Engine
	Estimator  *perf.Estimator
	Similarity *similarity.Detector
	Encoder    *similarity.LazyEncoder
	Grader     *grader.Grader
	Recorder   *monitor.Metrics

	closeInvoker func() error
}

// New validates the toolchain and profile configuration and builds every
// component on top of one invoker. recorder may be nil.
func New(ctx context.Context, cfg *config.Config, recorder *monitor.Metrics) (*App, error) {
	runtimes, err := runtime.NewRegistry(cfg.Toolchains)
	if err != nil {
		return nil, fmt.Errorf("toolchains: %w", err)
	}
	profiles, err := analysis.NewRegistryFromConfig(cfg.Analysis.Profiles)
	if err != nil {
		return nil, fmt.Errorf("analysis profiles: %w", err)
	}

	inv, closeInvoker, err := sandbox.NewInvoker(ctx, cfg.Sandbox)
	if err != nil {
		return nil, fmt.Errorf("sandbox: %w", err)
	}

	engine := metrics.NewEngine(metrics.NewPythonAnalyzer(inv, cfg.Analysis.Timeout))
	estimator := perf.NewEstimator(inv, perf.VerbHeuristic{}, engine, perf.Options{
		Sizes:          cfg.Performance.Sizes,
		MinTimeout:     cfg.Performance.MinTimeout,
		MaxTimeout:     cfg.Performance.MaxTimeout,
		CompileTimeout: cfg.Performance.CompileTimeout,
		MinSamples:     cfg.Performance.MinSamples,
	})

	var encoder *similarity.LazyEncoder
	var enc similarity.Encoder
	if emb := cfg.Similarity.Embedding; emb.Endpoint != "" {
		encoder = similarity.NewLazyHTTPEncoder(emb.Endpoint, emb.Model, emb.Timeout)
		enc = encoder
	}
	detector := similarity.NewDetector(
		similarity.NewWinnower(cfg.Similarity.NoiseThreshold, cfg.Similarity.GuaranteeThreshold),
		enc,
		similarity.Options{
			SyntacticThreshold: cfg.Similarity.SyntacticThreshold,
			SemanticThreshold:  cfg.Similarity.SemanticThreshold,
			Timeout:            cfg.Similarity.Timeout,
		},
	)

	runner := judge.NewRunner(inv, judge.Options{
		CaseTimeout:     cfg.Grader.CaseTimeout,
		CompileTimeout:  cfg.Grader.CompileTimeout,
		MaxDiffLines:    cfg.Grader.MaxDiffLines,
		CaseInsensitive: cfg.Grader.CaseInsensitive,
	})
	analyzer := analysis.NewAnalyzer(profiles, inv, cfg.Analysis.Timeout)

	g := grader.New(grader.Deps{
		Runtimes:   runtimes,
		Runner:     runner,
		Analyzer:   analyzer,
		Metrics:    engine,
		Scanner:    monitor.NewRiskScanner(),
		Recorder:   recorder,
		Estimator:  estimator,
		Similarity: detector,
	}, grader.Options{
		FormatReportLimit: cfg.Grader.FormatReportLimit,
		Parallel:          cfg.Grader.Parallel,
	})

	log.Info().
		Str("isolation", cfg.Sandbox.Isolation).
		Strs("languages", runtimes.Languages()).
		Int("profiles", len(profiles.Profiles())).
		Bool("semantic_similarity", encoder != nil).
		Msg("grading components ready")

	return &App{
		Invoker:      inv,
		Runtimes:     runtimes,
		Profiles:     profiles,
		Analyzer:     analyzer,
		Metrics:      engine,
		Estimator:    estimator,
		Similarity:   detector,
		Encoder:      encoder,
		Grader:       g,
		Recorder:     recorder,
		closeInvoker: closeInvoker,
	}, nil
}

// Close releases the invoker's backend connection, if any.
func (a *App) Close() error {
	if a.closeInvoker == nil {
		return nil
	}
	return a.closeInvoker()
}
