package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/namespaces"
	"github.com/rs/zerolog/log"
)

// Client wraps the containerd client with a namespace and an image cache.
type Client struct {
	inner     *containerd.Client
	namespace string

	mu     sync.Mutex
	images map[string]containerd.Image
}

// NewClient connects to containerd and verifies the connection.
func NewClient(ctx context.Context, socket, namespace string) (*Client, error) {
	inner, err := containerd.New(socket,
		containerd.WithDefaultNamespace(namespace),
		containerd.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to containerd at %s: %v", ErrBackendDown, socket, err)
	}

	if _, err := inner.Version(ctx); err != nil {
		_ = inner.Close()
		return nil, fmt.Errorf("%w: containerd health check failed: %v", ErrBackendDown, err)
	}

	log.Info().
		Str("socket", socket).
		Str("namespace", namespace).
		Msg("connected to containerd")

	return &Client{
		inner:     inner,
		namespace: namespace,
		images:    make(map[string]containerd.Image),
	}, nil
}

// WithNamespace returns a context with the configured namespace.
func (c *Client) WithNamespace(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, c.namespace)
}

// Healthy checks if the containerd connection is alive.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.inner.Version(ctx)
	return err == nil
}

// Image returns ref, pulling and unpacking it on first use.
func (c *Client) Image(ctx context.Context, ref string) (containerd.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if img, ok := c.images[ref]; ok {
		return img, nil
	}

	ctx = c.WithNamespace(ctx)
	img, err := c.inner.GetImage(ctx, ref)
	if err != nil {
		log.Info().Str("ref", ref).Msg("pulling image")
		img, err = c.inner.Pull(ctx, ref, containerd.WithPullUnpack)
		if err != nil {
			return nil, fmt.Errorf("pulling image %s: %w", ref, err)
		}
	}

	c.images[ref] = img
	return img, nil
}

// Close shuts down the containerd client.
func (c *Client) Close() error {
	return c.inner.Close()
}
