package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog/log"
)

const containerPrefix = "grader-"

// ContainerdInvoker runs each command in a fresh containerd container that
// bind-mounts the command's work dir at the same path.
type ContainerdInvoker struct {
	client       *Client
	defaultImage string
	limits       ResourceLimits
	security     SecurityProfile
	sem          chan struct{}
	maxOutput    int
}

// NewContainerdInvoker creates an invoker on top of an existing client.
func NewContainerdInvoker(client *Client, defaultImage string, limits ResourceLimits, maxConcurrent int) (*ContainerdInvoker, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	return &ContainerdInvoker{
		client:       client,
		defaultImage: defaultImage,
		limits:       limits,
		security:     SubmissionSecurityProfile(),
		sem:          make(chan struct{}, maxConcurrent),
		maxOutput:    defaultMaxOutput,
	}, nil
}

func (r *ContainerdInvoker) Run(ctx context.Context, c Command) (*Result, error) {
	execID := uuid.New().String()
	if len(c.Args) == 0 {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: empty argv", ErrInvalidCommand)}
	}
	if c.Dir == "" || !filepath.IsAbs(c.Dir) {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: containerised commands need an absolute work dir", ErrInvalidCommand)}
	}

	if err := shareWorkDir(c.Dir, r.security.UID, r.security.GID); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "share_work_dir", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	logger := log.With().
		Str("exec_id", execID).
		Str("tool", c.Args[0]).
		Logger()

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ref := c.Image
	if ref == "" {
		ref = r.defaultImage
	}
	image, err := r.client.Image(execCtx, ref)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "pull_image", Err: fmt.Errorf("%w: %v", ErrBackendDown, err)}
	}

	id := containerPrefix + execID
	nsCtx := r.client.WithNamespace(execCtx)

	container, err := r.client.inner.NewContainer(nsCtx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithProcessArgs(c.Args...),
			oci.WithProcessCwd(c.Dir),
			oci.WithHostname("grader"),
			oci.WithEnv(append([]string{"HOME=/tmp", "LANG=C.UTF-8"}, c.Env...)),
			func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
				ApplySecurityProfile(s, r.security)
				ApplyResourceLimits(s, r.limits)
				s.Mounts = append(s.Mounts, specs.Mount{
					Destination: c.Dir,
					Type:        "bind",
					Source:      c.Dir,
					Options:     []string{"rbind", "rw"},
				})
				return nil
			},
		),
	)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "create_container", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}
	defer r.cleanupContainer(container)

	stdout := newCappedBuffer(r.maxOutput)
	stderr := newCappedBuffer(r.maxOutput / 4)

	task, err := container.NewTask(nsCtx, cio.NewCreator(cio.WithStreams(strings.NewReader(c.Stdin), stdout, stderr)))
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, &ExecutionError{ExecID: execID, Op: "create_task", Err: fmt.Errorf("%w: %s", ErrToolNotFound, c.Args[0])}
		}
		return nil, &ExecutionError{ExecID: execID, Op: "create_task", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	exitCh, err := task.Wait(nsCtx)
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "task_wait", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	start := time.Now()
	if err := task.Start(nsCtx); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "task_start", Err: fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.Args[0], err)}
	}

	select {
	case status := <-exitCh:
		res := &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: int(status.ExitCode()),
			Duration: time.Since(start),
		}
		logger.Debug().Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("container task completed")
		return res, nil

	case <-execCtx.Done():
		logger.Warn().Dur("timeout", timeout).Msg("container task timed out, killing")
		killCtx := r.client.WithNamespace(context.Background())
		if err := task.Kill(killCtx, 9, containerd.WithKillAll); err != nil {
			logger.Error().Err(err).Msg("failed to kill timed out task")
		}
		<-exitCh

		res := &Result{
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: -1,
			Duration: time.Since(start),
		}
		if ctx.Err() != nil {
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: ctx.Err()}
		}
		return res, &ExecutionError{ExecID: execID, Op: "run", Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
	}
}

// cleanupContainer kills and deletes the task and the container with its snapshot.
func (r *ContainerdInvoker) cleanupContainer(container containerd.Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = r.client.WithNamespace(ctx)

	logger := log.With().Str("container_id", container.ID()).Logger()

	if task, err := container.Task(ctx, nil); err == nil {
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			logger.Warn().Err(err).Msg("failed to delete task")
		}
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		logger.Error().Err(err).Msg("failed to delete container")
	}
}

// CleanupOrphaned removes grader containers left over from a crashed process.
func (r *ContainerdInvoker) CleanupOrphaned(ctx context.Context) (int, error) {
	list, err := r.client.inner.Containers(r.client.WithNamespace(ctx))
	if err != nil {
		return 0, fmt.Errorf("listing containers: %w", err)
	}

	var cleaned int
	for _, c := range list {
		if !strings.HasPrefix(c.ID(), containerPrefix) {
			continue
		}
		r.cleanupContainer(c)
		cleaned++
	}
	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned up orphaned grader containers")
	}
	return cleaned, nil
}
