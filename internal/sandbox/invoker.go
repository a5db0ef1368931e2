package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds a command that does not set its own timeout.
	DefaultTimeout = 30 * time.Second

	defaultMaxOutput = 1 << 20
	killGrace        = 2 * time.Second
)

// Command describes one external process invocation.
type Command struct {
	Args    []string      // argv; Args[0] is resolved on PATH unless it contains a slash
	Stdin   string        // fed to the process verbatim
	Timeout time.Duration // zero means DefaultTimeout
	Dir     string        // working directory, usually a private temp dir
	Env     []string      // extra KEY=VALUE pairs appended to the inherited environment
	Image   string        // container image hint; ignored by ProcessInvoker
}

// Result is the captured outcome of a process that ran to completion or was killed.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// DurationMS returns the wall-clock duration in whole milliseconds.
func (r *Result) DurationMS() int64 {
	return r.Duration.Milliseconds()
}

// Invoker runs external processes with captured I/O and a hard timeout.
// On timeout implementations return the partial Result together with ErrTimeout.
type Invoker interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ProcessInvoker runs commands as local child processes, each in its own
// process group so that a timeout kills the whole tree.
type ProcessInvoker struct {
	sem       chan struct{}
	active    atomic.Int64
	maxOutput int
}

// NewProcessInvoker creates an invoker allowing at most maxConcurrent
// simultaneous processes. maxOutput caps each captured stream in bytes.
func NewProcessInvoker(maxConcurrent, maxOutput int) *ProcessInvoker {
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	if maxOutput < 1 {
		maxOutput = defaultMaxOutput
	}
	return &ProcessInvoker{
		sem:       make(chan struct{}, maxConcurrent),
		maxOutput: maxOutput,
	}
}

// Run executes cmd and waits for it to exit or time out.
func (p *ProcessInvoker) Run(ctx context.Context, c Command) (*Result, error) {
	execID := uuid.New().String()

	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, &ExecutionError{ExecID: execID, Op: "validate", Err: fmt.Errorf("%w: empty argv", ErrInvalidCommand)}
	}

	logger := log.With().
		Str("exec_id", execID).
		Str("tool", c.Args[0]).
		Logger()

	path, err := exec.LookPath(c.Args[0])
	if err != nil {
		return nil, &ExecutionError{ExecID: execID, Op: "lookup", Err: fmt.Errorf("%w: %s", ErrToolNotFound, c.Args[0])}
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: execID, Op: "acquire_slot", Err: ctx.Err()}
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, path, c.Args[1:]...) // #nosec G204 -- argv assembled by toolchains and profiles
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdin = strings.NewReader(c.Stdin)

	stdout := newCappedBuffer(p.maxOutput)
	stderr := newCappedBuffer(p.maxOutput / 4)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = killGrace

	logger.Debug().Strs("args", c.Args).Dur("timeout", timeout).Msg("starting process")

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			res.ExitCode = -1
			logger.Warn().Dur("timeout", timeout).Msg("process timed out, process group killed")
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
		}
		if ctx.Err() != nil {
			res.ExitCode = -1
			return res, &ExecutionError{ExecID: execID, Op: "run", Err: ctx.Err()}
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &ExecutionError{ExecID: execID, Op: "run", Err: fmt.Errorf("%w: %v", ErrInternal, err)}
		}
		res.ExitCode = exitErr.ExitCode()
	}

	logger.Debug().
		Int("exit_code", res.ExitCode).
		Dur("duration", duration).
		Msg("process completed")

	return res, nil
}

// ActiveCount returns the number of processes currently running.
func (p *ProcessInvoker) ActiveCount() int64 {
	return p.active.Load()
}

// cappedBuffer keeps at most max bytes and silently discards the rest so a
// chatty process cannot exhaust memory.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - len(b.buf)
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + truncationMarker
	}
	return string(b.buf)
}

const truncationMarker = "\n... [output truncated]"
