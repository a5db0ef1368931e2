package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrEncoderUnavailable = errors.New("embedding encoder unavailable")

// Encoder turns a batch of sources into one embedding vector each, in order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEncoder calls a text-embeddings inference server. The request body is
// {"inputs": [...], "truncate": true} and the response a JSON array of vectors.
type HTTPEncoder struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewHTTPEncoder(endpoint, model string, timeout time.Duration) *HTTPEncoder {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPEncoder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
	Model    string   `json:"model,omitempty"`
}

func (e *HTTPEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEncoderUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

// Probe checks that the server answers its health endpoint.
func (e *HTTPEncoder) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrEncoderUnavailable, resp.StatusCode)
	}
	return nil
}

// LazyEncoder builds its Encoder on first use. Initialisation runs under a
// mutex exactly once per success; a failed attempt is retried on the next
// call. After initialisation Encode runs without locking.
type LazyEncoder struct {
	mu    sync.Mutex
	init  func(ctx context.Context) (Encoder, error)
	ready Encoder
	done  chan struct{}
}

func NewLazyEncoder(init func(ctx context.Context) (Encoder, error)) *LazyEncoder {
	return &LazyEncoder{init: init, done: make(chan struct{})}
}

// NewLazyHTTPEncoder probes the endpoint before first use.
func NewLazyHTTPEncoder(endpoint, model string, timeout time.Duration) *LazyEncoder {
	return NewLazyEncoder(func(ctx context.Context) (Encoder, error) {
		if endpoint == "" {
			return nil, fmt.Errorf("%w: no endpoint configured", ErrEncoderUnavailable)
		}
		enc := NewHTTPEncoder(endpoint, model, timeout)
		if err := enc.Probe(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("endpoint", endpoint).Str("model", model).Msg("embedding encoder ready")
		return enc, nil
	})
}

func (l *LazyEncoder) get(ctx context.Context) (Encoder, error) {
	select {
	case <-l.done:
		return l.ready, nil
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return l.ready, nil
	default:
	}

	enc, err := l.init(ctx)
	if err != nil {
		return nil, err
	}
	l.ready = enc
	close(l.done)
	return enc, nil
}

func (l *LazyEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	enc, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return enc.Encode(ctx, texts)
}
