package grader

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"submission-grader/internal/monitor"
	"submission-grader/internal/similarity"
)

// BatchItem is the outcome for one submission of a batch. Exactly one of
// Evaluation and Err is set.
type BatchItem struct {
	Submission Submission  `json:"submission"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// BatchResult keeps items in submission order.
type BatchResult struct {
	Items      []BatchItem       `json:"items"`
	Similar    []similarity.Pair `json:"similar_pairs,omitempty"`
	Similarity string            `json:"similarity_error,omitempty"` // set when the similarity phase failed
}

// EvaluateBatch grades independent submissions in parallel. A failing
// submission does not stop the others; cancelling ctx does. When the
// question enables similarity the batch is also compared syntactically.
func (g *Grader) EvaluateBatch(ctx context.Context, subs []Submission, q *Question) (*BatchResult, error) {
	ctx, span := g.tracer.StartSpan(ctx, "evaluate_batch", monitor.AttrBatchSize.Int(len(subs)))
	defer span.End()

	res := &BatchResult{Items: make([]BatchItem, len(subs))}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Parallel)

	for i, sub := range subs {
		res.Items[i].Submission = sub
		eg.Go(func() error {
			item := &res.Items[i]
			if err := egCtx.Err(); err != nil {
				item.Err, item.Error = err, err.Error()
				return nil
			}
			ev, err := g.Evaluate(egCtx, sub, q)
			item.Evaluation = ev
			if err != nil {
				item.Err, item.Error = err, err.Error()
				log.Warn().Err(err).Str("submission_id", sub.ID).Msg("submission evaluation failed")
			}
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if q.Features.Similarity && g.deps.Similarity != nil {
		g.compare(ctx, res, subs, q)
	}
	return res, nil
}

func (g *Grader) compare(ctx context.Context, res *BatchResult, subs []Submission, q *Question) {
	inputs := make([]similarity.Input, 0, len(subs))
	for _, s := range subs {
		lang := s.Language
		if lang == "" {
			lang = q.Language
		}
		inputs = append(inputs, similarity.Input{ID: s.ID, Language: lang, Source: s.Source})
	}

	start := time.Now()
	pairs, err := g.deps.Similarity.Run(ctx, similarity.Syntactic, inputs)
	if err != nil {
		log.Warn().Err(err).Str("question_id", q.ID).Msg("batch similarity failed")
		res.Similarity = err.Error()
		return
	}
	res.Similar = pairs
	if g.deps.Recorder != nil {
		g.deps.Recorder.RecordSimilarity(string(similarity.Syntactic), len(pairs), time.Since(start))
	}
}

// Succeeded counts items that produced an evaluation.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Evaluation != nil {
			n++
		}
	}
	return n
}
