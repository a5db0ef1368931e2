// Package similarity finds pairs of submissions in a batch that look alike,
// either syntactically (token winnowing) or semantically (embeddings).
package similarity

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"submission-grader/internal/monitor"
	"submission-grader/internal/runtime"
	"submission-grader/internal/sandbox"
)

// Method names the comparison technique that produced a pair.
type Method string

const (
	Syntactic Method = "syntactic"
	Semantic  Method = "semantic"
)

// Input is one submission of a batch.
type Input struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Pair is a canonical (IDA < IDB) similar pair.
type Pair struct {
	IDA     string  `json:"id_a"`
	IDB     string  `json:"id_b"`
	Percent float64 `json:"similarity_percent"`
	Method  Method  `json:"method"`
}

// Options configure a Detector. Zero thresholds fall back to 25 and 50.
type Options struct {
	SyntacticThreshold float64
	SemanticThreshold  float64
	Timeout            time.Duration
}

// Detector runs batch comparisons. The encoder may be nil, in which case
// semantic runs fail with ErrEncoderUnavailable.
type Detector struct {
	comparator Comparator
	encoder    Encoder
	opts       Options
	cache      *xsync.MapOf[string, []float32]
	tracer     *monitor.Tracer
}

func NewDetector(comparator Comparator, encoder Encoder, opts Options) *Detector {
	if opts.SyntacticThreshold <= 0 {
		opts.SyntacticThreshold = 25
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = 50
	}
	return &Detector{
		comparator: comparator,
		encoder:    encoder,
		opts:       opts,
		cache:      xsync.NewMapOf[string, []float32](),
		tracer:     monitor.NewTracer(),
	}
}

// Run dispatches to Syntactic or Semantic using the configured threshold.
func (d *Detector) Run(ctx context.Context, method Method, inputs []Input) ([]Pair, error) {
	switch method {
	case Syntactic:
		return d.Syntactic(ctx, inputs, d.opts.SyntacticThreshold)
	case Semantic:
		return d.Semantic(ctx, inputs, d.opts.SemanticThreshold)
	}
	return nil, fmt.Errorf("unknown similarity method %q", method)
}

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// usable drops empty sources, repeated ids and ids that cannot name a file.
func usable(inputs []Input) []Input {
	out := make([]Input, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		switch {
		case seen[in.ID]:
			log.Warn().Str("submission_id", in.ID).Msg("skipping duplicate submission id")
		case strings.TrimSpace(in.Source) == "":
			log.Debug().Str("submission_id", in.ID).Msg("skipping empty submission")
		case !safeID.MatchString(in.ID):
			log.Warn().Str("submission_id", in.ID).Msg("skipping submission with unusable id")
		default:
			seen[in.ID] = true
			out = append(out, in)
		}
	}
	return out
}

func (d *Detector) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.Timeout > 0 {
		return context.WithTimeout(ctx, d.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// Syntactic writes every submission as <id><suffix> into one directory and
// compares the directory against itself.
func (d *Detector) Syntactic(ctx context.Context, inputs []Input, threshold float64) ([]Pair, error) {
	inputs = usable(inputs)
	if len(inputs) < 2 {
		return nil, nil
	}
	ctx, cancel := d.withBudget(ctx)
	defer cancel()
	ctx, span := d.tracer.StartSpan(ctx, "similarity.syntactic", monitor.AttrBatchSize.Int(len(inputs)))
	defer span.End()

	var pairs []Pair
	err := sandbox.WithTempDir("similarity", func(dir string) error {
		for _, in := range inputs {
			if _, err := sandbox.WriteSource(dir, in.ID+runtime.Suffix(in.Language), in.Source); err != nil {
				return err
			}
		}
		matches, err := d.comparator.Compare(ctx, dir)
		if err != nil {
			return fmt.Errorf("comparing submissions: %w", err)
		}
		for _, m := range matches {
			a, b := idFromPath(m.PathA), idFromPath(m.PathB)
			if a >= b {
				continue
			}
			pct := round2(math.Max(m.SimA, m.SimB) * 100)
			if pct >= threshold {
				pairs = append(pairs, Pair{IDA: a, IDB: b, Percent: pct, Method: Syntactic})
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sortPairs(pairs)
	log.Info().Int("submissions", len(inputs)).Int("pairs", len(pairs)).Float64("threshold", threshold).
		Msg("syntactic similarity completed")
	return pairs, nil
}

// Semantic embeds every source in one batch, reusing cached vectors, and
// compares the upper triangle of the cosine matrix.
func (d *Detector) Semantic(ctx context.Context, inputs []Input, threshold float64) ([]Pair, error) {
	inputs = usable(inputs)
	if len(inputs) < 2 {
		return nil, nil
	}
	if d.encoder == nil {
		return nil, ErrEncoderUnavailable
	}
	ctx, cancel := d.withBudget(ctx)
	defer cancel()
	ctx, span := d.tracer.StartSpan(ctx, "similarity.semantic", monitor.AttrBatchSize.Int(len(inputs)))
	defer span.End()

	vectors, err := d.embed(ctx, inputs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var pairs []Pair
	for i := range inputs {
		for j := i + 1; j < len(inputs); j++ {
			pct := round2(Cosine(vectors[i], vectors[j]) * 100)
			if pct < threshold {
				continue
			}
			a, b := inputs[i].ID, inputs[j].ID
			if a == b {
				continue
			}
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, Pair{IDA: a, IDB: b, Percent: pct, Method: Semantic})
		}
	}

	sortPairs(pairs)
	log.Info().Int("submissions", len(inputs)).Int("pairs", len(pairs)).Float64("threshold", threshold).
		Msg("semantic similarity completed")
	return pairs, nil
}

func (d *Detector) embed(ctx context.Context, inputs []Input) ([][]float32, error) {
	vectors := make([][]float32, len(inputs))
	var missing []string
	var missingIdx []int
	for i, in := range inputs {
		if v, ok := d.cache.Load(monitor.CodeHash(in.Source)); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, in.Source)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	encoded, err := d.encoder.Encode(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("encoding %d submissions: %w", len(missing), err)
	}
	if len(encoded) != len(missing) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d inputs", len(encoded), len(missing))
	}
	for k, idx := range missingIdx {
		vectors[idx] = encoded[k]
		d.cache.Store(monitor.CodeHash(missing[k]), encoded[k])
	}
	return vectors, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func idFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sortPairs(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Percent != pairs[j].Percent {
			return pairs[i].Percent > pairs[j].Percent
		}
		if pairs[i].IDA != pairs[j].IDA {
			return pairs[i].IDA < pairs[j].IDA
		}
		return pairs[i].IDB < pairs[j].IDB
	})
}
