package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"submission-grader/internal/monitor"
)

// EvaluationStore is the persistence ResultWriter drains into. *DB implements it.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, rec *EvaluationRecord) error
}

// ResultWriter persists evaluations off the grading path with bounded
// buffering and retries.
type ResultWriter struct {
	store   EvaluationStore
	ch      chan *EvaluationRecord
	wg      sync.WaitGroup
	done    chan struct{}
	metrics *monitor.Metrics
	backoff time.Duration
}

// NewResultWriter buffers up to bufferSize records. metrics may be nil.
func NewResultWriter(store EvaluationStore, bufferSize int, metrics *monitor.Metrics) *ResultWriter {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	return &ResultWriter{
		store:   store,
		ch:      make(chan *EvaluationRecord, bufferSize),
		done:    make(chan struct{}),
		metrics: metrics,
		backoff: 100 * time.Millisecond,
	}
}

func (w *ResultWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Write queues rec, dropping it when the buffer is full.
func (w *ResultWriter) Write(rec *EvaluationRecord) bool {
	select {
	case w.ch <- rec:
		return true
	default:
		log.Warn().Str("evaluation_id", rec.ID.String()).Msg("result buffer full, dropping evaluation")
		if w.metrics != nil {
			w.metrics.ResultsDropped.Inc()
		}
		return false
	}
}

// Flush stops accepting work and waits up to timeout for queued records.
func (w *ResultWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("result writer flushed")
	case <-time.After(timeout):
		log.Warn().Int("pending", len(w.ch)).Msg("result writer flush timed out")
	}
}

func (w *ResultWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.ch:
			w.writeWithRetry(rec)
		case <-w.done:
			for {
				select {
				case rec := <-w.ch:
					w.writeWithRetry(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *ResultWriter) writeWithRetry(rec *EvaluationRecord) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.store.SaveEvaluation(ctx, rec)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * w.backoff
			log.Warn().
				Err(err).
				Str("evaluation_id", rec.ID.String()).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("result write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("evaluation_id", rec.ID.String()).
				Msg("result write failed permanently after retries")
			if w.metrics != nil {
				w.metrics.ResultsDropped.Inc()
			}
		}
	}
}
