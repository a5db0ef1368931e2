// Package perf estimates the empirical time complexity of a submission by
// timing an instrumented harness over growing input sizes.
package perf

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"submission-grader/internal/judge"
	"submission-grader/internal/metrics"
	"submission-grader/internal/monitor"
	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

// ToolName identifies the estimator in stored analysis results.
const ToolName = "performance-analyzer"

//go:embed harness_py.tmpl harness_c.tmpl
var harnessFS embed.FS

var harnesses = template.Must(template.ParseFS(harnessFS, "*.tmpl"))

// Options bound the measurement run.
type Options struct {
	Sizes          []int
	MinTimeout     time.Duration
	MaxTimeout     time.Duration
	CompileTimeout time.Duration
	MinSamples     int
}

func DefaultOptions() Options {
	return Options{
		Sizes:          []int{10, 100, 1000, 10000},
		MinTimeout:     30 * time.Second,
		MaxTimeout:     300 * time.Second,
		CompileTimeout: 60 * time.Second,
		MinSamples:     3,
	}
}

// TimeoutFor grows with input size: one second per hundred elements,
// clamped to [MinTimeout, MaxTimeout].
func (o Options) TimeoutFor(size int) time.Duration {
	t := time.Duration(size/100) * time.Second
	return min(o.MaxTimeout, max(o.MinTimeout, t))
}

// FunctionRank is the static complexity rank of one function.
type FunctionRank struct {
	Name       string `json:"name"`
	Complexity int    `json:"complexity"`
	Rank       string `json:"rank"`
}

// Result is the outcome of one estimation run.
type Result struct {
	Language string         `json:"language"`
	Entry    string         `json:"entry_point"`
	Samples  []Sample       `json:"samples"`
	Estimate Estimate       `json:"estimate"`
	Static   []FunctionRank `json:"static,omitempty"`
	Report   string         `json:"report"`
}

// Estimator runs the harnesses through the invoker. The metrics engine is
// optional and only feeds the static ranking.
type Estimator struct {
	invoker  sandbox.Invoker
	detector EntryPointDetector
	engine   *metrics.Engine
	opts     Options
	tracer   *monitor.Tracer
}

func NewEstimator(invoker sandbox.Invoker, detector EntryPointDetector, engine *metrics.Engine, opts Options) *Estimator {
	def := DefaultOptions()
	if len(opts.Sizes) == 0 {
		opts.Sizes = def.Sizes
	}
	if opts.MinTimeout <= 0 {
		opts.MinTimeout = def.MinTimeout
	}
	if opts.MaxTimeout < opts.MinTimeout {
		opts.MaxTimeout = max(def.MaxTimeout, opts.MinTimeout)
	}
	if opts.CompileTimeout <= 0 {
		opts.CompileTimeout = def.CompileTimeout
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = def.MinSamples
	}
	if detector == nil {
		detector = VerbHeuristic{}
	}
	return &Estimator{invoker: invoker, detector: detector, engine: engine, opts: opts, tracer: monitor.NewTracer()}
}

type harnessData struct {
	Source string
	Entry  string
}

// plan is the per-language way of building and running the harness.
type plan struct {
	harness  string
	srcName  string
	mainName string
	compile  func(dir, harness string) []string
	run      func(dir, harness string) []string
}

func planFor(language string) (plan, error) {
	switch strings.ToLower(language) {
	case "python":
		return plan{
			harness:  "harness_py.tmpl",
			srcName:  "submission.py",
			mainName: "harness.py",
			run:      func(_, h string) []string { return []string{"python3", h} },
		}, nil
	case "c", "cpp", "c++":
		return plan{
			harness:  "harness_c.tmpl",
			srcName:  "submission.c",
			mainName: "harness.c",
			compile: func(dir, h string) []string {
				return []string{"gcc", "-Wall", "-O0", h, "-o", dir + "/harness", "-lm"}
			},
			run: func(dir, _ string) []string { return []string{dir + "/harness"} },
		}, nil
	}
	return plan{}, fmt.Errorf("%w for performance analysis: %q", runtime.ErrUnsupportedLanguage, language)
}

// Run measures source at every configured size and fits a model. A timeout
// at one size skips all larger sizes; other per-size failures are recorded
// in the sample and collection continues.
func (e *Estimator) Run(ctx context.Context, language, source string) (*Result, error) {
	p, err := planFor(language)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("empty source")
	}
	entry, err := e.detector.Detect(source, language)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.StartSpan(ctx, "perf.run",
		monitor.AttrLanguage.String(strings.ToLower(language)),
		monitor.AttrCodeHash.String(monitor.CodeHash(source)),
	)
	defer span.End()

	logger := log.With().Str("language", language).Str("entry_point", entry).Logger()
	res := &Result{Language: strings.ToLower(language), Entry: entry}

	err = sandbox.WithTempDir("perf", func(dir string) error {
		src, err := sandbox.WriteSource(dir, p.srcName, source)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := harnesses.ExecuteTemplate(&buf, p.harness, harnessData{Source: src, Entry: entry}); err != nil {
			return fmt.Errorf("rendering harness: %w", err)
		}
		harness, err := sandbox.WriteSource(dir, p.mainName, buf.String())
		if err != nil {
			return err
		}

		if p.compile != nil {
			if err := e.compile(ctx, dir, p.compile(dir, harness)); err != nil {
				return err
			}
		}

		for _, size := range e.opts.Sizes {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sample, err := e.measure(ctx, dir, append(p.run(dir, harness), strconv.Itoa(size)), size)
			if err != nil {
				return err
			}
			res.Samples = append(res.Samples, sample)
			if sample.TimedOut {
				logger.Warn().Int("size", size).Msg("timeout, skipping larger sizes")
				break
			}
			if sample.Err != "" {
				logger.Debug().Int("size", size).Str("error", sample.Err).Msg("sample failed")
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.Estimate = Fit(res.Samples, e.opts.MinSamples)
	res.Static = e.staticRanks(ctx, source, language)
	res.Report = Render(res)
	span.SetAttributes(monitor.AttrModel.String(string(res.Estimate.Model)))

	logger.Info().
		Str("model", string(res.Estimate.Model)).
		Float64("confidence", res.Estimate.Confidence).
		Int("samples", len(res.Samples)).
		Msg("performance estimate completed")
	return res, nil
}

func (e *Estimator) compile(ctx context.Context, dir string, argv []string) error {
	out, err := e.invoker.Run(ctx, sandbox.Command{Args: argv, Timeout: e.opts.CompileTimeout, Dir: dir})
	if err != nil {
		if sandbox.IsTimeout(err) {
			return &judge.CompileError{Output: fmt.Sprintf("compiler did not finish within %s", e.opts.CompileTimeout)}
		}
		return fmt.Errorf("compiling harness: %w", err)
	}
	if out.ExitCode != 0 {
		return &judge.CompileError{Output: out.Stderr}
	}
	return nil
}

type harnessOutput struct {
	TimeMS   *float64 `json:"time_ms"`
	MemoryKB *float64 `json:"memory_kb"`
	Profile  string   `json:"profile"`
	Error    string   `json:"error"`
}

// measure runs one size. Only a missing interpreter is returned as an
// error; everything else becomes part of the sample.
func (e *Estimator) measure(ctx context.Context, dir string, argv []string, size int) (Sample, error) {
	timeout := e.opts.TimeoutFor(size)
	out, err := e.invoker.Run(ctx, sandbox.Command{Args: argv, Timeout: timeout, Dir: dir})
	switch {
	case sandbox.IsToolNotFound(err):
		return Sample{}, err
	case sandbox.IsTimeout(err):
		return Sample{Size: size, TimeMS: float64(timeout.Milliseconds()), TimedOut: true}, nil
	case err != nil:
		return Sample{Size: size, Err: err.Error()}, nil
	case out.ExitCode != 0:
		var ho harnessOutput
		msg := strings.TrimSpace(out.Stderr)
		if json.Unmarshal([]byte(msg), &ho) == nil && ho.Error != "" {
			msg = ho.Error
		}
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", out.ExitCode)
		}
		return Sample{Size: size, Err: msg}, nil
	}

	var ho harnessOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(lastLine(out.Stdout))), &ho); err != nil || ho.TimeMS == nil {
		return Sample{Size: size, Err: "harness printed no measurement"}, nil
	}
	return Sample{Size: size, TimeMS: *ho.TimeMS, MemoryKB: ho.MemoryKB, Profile: strings.TrimSpace(ho.Profile)}, nil
}

// lastLine skips anything the submission itself printed before the
// harness's measurement line.
func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Rank buckets a McCabe score: A up to 5, B up to 10, C above.
func Rank(complexity int) string {
	switch {
	case complexity > 10:
		return "C"
	case complexity > 5:
		return "B"
	}
	return "A"
}

func (e *Estimator) staticRanks(ctx context.Context, source, language string) []FunctionRank {
	if e.engine == nil {
		return nil
	}
	rep, err := e.engine.Analyze(ctx, source, language)
	if err != nil || rep == nil {
		return nil
	}
	var ranks []FunctionRank
	for _, f := range rep.Functions {
		if f.Name == "main" {
			continue
		}
		ranks = append(ranks, FunctionRank{Name: f.Name, Complexity: f.Complexity, Rank: Rank(f.Complexity)})
	}
	return ranks
}
