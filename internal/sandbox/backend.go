package sandbox

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"submission-grader/internal/config"
)

// NewInvoker builds the invoker selected by cfg.Isolation. The returned close
// function releases backend connections and is never nil.
func NewInvoker(ctx context.Context, cfg config.SandboxConfig) (Invoker, func() error, error) {
	noop := func() error { return nil }
	limits := ResourceLimits{
		CPUShares: cfg.Limits.CPUShares,
		MemoryMB:  cfg.Limits.MemoryMB,
		PidsLimit: cfg.Limits.PidsLimit,
		DiskMB:    cfg.Limits.DiskMB,
	}

	switch cfg.Isolation {
	case "", "process":
		return NewProcessInvoker(cfg.MaxConcurrent, cfg.MaxOutputBytes), noop, nil
	case "containerd":
		return newContainerdInvoker(ctx, cfg, limits)
	case "docker":
		inv, err := NewDockerInvoker(cfg.DefaultImage, limits, cfg.MaxConcurrent)
		if err != nil {
			return nil, noop, err
		}
		return inv, noop, nil
	case "auto":
		if runtime.GOOS == "linux" {
			inv, closeFn, err := newContainerdInvoker(ctx, cfg, limits)
			if err == nil {
				log.Info().Msg("using containerd isolation")
				return inv, closeFn, nil
			}
			log.Warn().Err(err).Msg("containerd unavailable, trying Docker")
		}
		if inv, err := NewDockerInvoker(cfg.DefaultImage, limits, cfg.MaxConcurrent); err == nil {
			log.Info().Msg("using Docker isolation")
			return inv, noop, nil
		}
		log.Warn().Msg("no container backend available, falling back to process isolation")
		return NewProcessInvoker(cfg.MaxConcurrent, cfg.MaxOutputBytes), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w %q: must be process, containerd, docker or auto", ErrUnknownIsolation, cfg.Isolation)
	}
}

func newContainerdInvoker(ctx context.Context, cfg config.SandboxConfig, limits ResourceLimits) (Invoker, func() error, error) {
	noop := func() error { return nil }

	client, err := NewClient(ctx, cfg.ContainerdSocket, cfg.Namespace)
	if err != nil {
		return nil, noop, err
	}

	inv, err := NewContainerdInvoker(client, cfg.DefaultImage, limits, cfg.MaxConcurrent)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}

	if cleaned, err := inv.CleanupOrphaned(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to cleanup orphaned containers")
	} else if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned orphaned containers on startup")
	}

	return inv, client.Close, nil
}
