package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"submission-grader/pkg/seccomp"
)

// DockerInvoker runs each command through `docker run`, for hosts without containerd.
type DockerInvoker struct {
	defaultImage string
	limits       ResourceLimits
	security     SecurityProfile
	dockerHost   string
	sem          chan struct{}
	maxOutput    int
}

// NewDockerInvoker checks that the docker CLI and daemon are reachable.
func NewDockerInvoker(defaultImage string, limits ResourceLimits, maxConcurrent int) (*DockerInvoker, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("%w: docker not found in PATH", ErrBackendDown)
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		return nil, fmt.Errorf("%w: docker daemon not reachable: %v", ErrBackendDown, err)
	}
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	return &DockerInvoker{
		defaultImage: defaultImage,
		limits:       limits,
		security:     SubmissionSecurityProfile(),
		dockerHost:   os.Getenv("DOCKER_HOST"),
		sem:          make(chan struct{}, maxConcurrent),
		maxOutput:    defaultMaxOutput,
	}, nil
}

func (d *DockerInvoker) Run(ctx context.Context, c Command) (*Result, error) {
	execID := uuid.New().String()
	if len(c.Args) == 0 {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: empty argv", ErrInvalidCommand)}
	}
	if c.Dir == "" || !filepath.IsAbs(c.Dir) {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: containerised commands need an absolute work dir", ErrInvalidCommand)}
	}

	if err := shareWorkDir(c.Dir, d.security.UID, d.security.GID); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "share_work_dir", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
	}

	logger := log.With().
		Str("exec_id", execID).
		Str("tool", c.Args[0]).
		Logger()

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	profileDir, err := os.MkdirTemp("", "grader-seccomp-*")
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "create_temp_dir", Err: err}
	}
	defer os.RemoveAll(profileDir)

	profileJSON, err := seccomp.DockerJSON(seccomp.ToolchainProfile())
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "seccomp_profile", Err: err}
	}
	seccompPath := filepath.Join(profileDir, "seccomp.json")
	if err := os.WriteFile(seccompPath, profileJSON, 0o600); err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "write_seccomp", Err: err}
	}

	name := containerPrefix + execID
	args := d.buildArgs(name, seccompPath, c)

	cmd := exec.CommandContext(execCtx, "docker", args...) // #nosec G204 -- args built by buildArgs
	if d.dockerHost != "" {
		cmd.Env = append(os.Environ(), "DOCKER_HOST="+d.dockerHost)
	}
	cmd.Stdin = strings.NewReader(c.Stdin)
	stdout := newCappedBuffer(d.maxOutput)
	stderr := newCappedBuffer(d.maxOutput / 4)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Killing the CLI leaves the container running, so remove it explicitly.
	cmd.Cancel = func() error {
		d.removeContainer(name)
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = killGrace

	start := time.Now()
	err = cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			res.ExitCode = -1
			logger.Warn().Dur("timeout", timeout).Msg("docker invocation timed out")
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ExecutionError{ExecID: execID, Op: "docker_run", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
		}
		res.ExitCode = exitErr.ExitCode()
		// docker run exits 127 when the entrypoint binary is missing in the image.
		if res.ExitCode == 127 && strings.Contains(res.Stderr, "executable file not found") {
			return nil, &ExecutionError{ExecID: execID, Op: "docker_run", Err: fmt.Errorf("%w: %s", ErrToolNotFound, c.Args[0])}
		}
	}

	logger.Debug().Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("docker invocation completed")
	return res, nil
}

func (d *DockerInvoker) buildArgs(name, seccompPath string, c Command) []string {
	image := c.Image
	if image == "" {
		image = d.defaultImage
	}

	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--network", "none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--security-opt", "seccomp=" + seccompPath,
		"--read-only",
		"-v", fmt.Sprintf("%s:%s:rw", c.Dir, c.Dir),
		"-w", c.Dir,
		"--user", fmt.Sprintf("%d:%d", d.security.UID, d.security.GID),
		"-e", "HOME=/tmp",
		"-e", "LANG=C.UTF-8",
	}
	args = append(args, d.limits.DockerArgs()...)
	for _, env := range c.Env {
		args = append(args, "-e", env)
	}
	args = append(args, image)
	return append(args, c.Args...)
}

func (d *DockerInvoker) removeContainer(name string) {
	kill := exec.Command("docker", "rm", "-f", name) // #nosec G204 -- name generated internally
	if d.dockerHost != "" {
		kill.Env = append(os.Environ(), "DOCKER_HOST="+d.dockerHost)
	}
	if err := kill.Run(); err != nil {
		log.Warn().Err(err).Str("container", name).Msg("failed to remove timed out container")
	}
}
