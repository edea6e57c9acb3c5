// Package sandbox runs tool-requested commands in ephemeral containers
// with no network, capped resources, and a single writable workspace mount.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/goclaw/internal/config"
)

// Network modes for an invocation. Anything but NetworkEnabled runs
// with networking fully disabled.
const (
	NetworkNone    = "none"
	NetworkEnabled = "enabled"
)

const (
	maxOutputBytes  = 64 * 1024
	cleanupTimeout  = 10 * time.Second
	versionProbe    = 5 * time.Second
	fallbackTimeout = 60 * time.Second
)

// Invocation describes one command execution request.
type Invocation struct {
	Command       string
	WorkspacePath string
	Timeout       time.Duration
	Network       string
}

// Result is what the command produced. A failing or timed-out command is
// still a Result; an error return means the executor itself could not run it.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
	Sandboxed bool
}

// Executor runs commands under docker or podman, falling back to direct
// host execution only in dev mode.
type Executor struct {
	cfg        config.SandboxConfig
	runtimeBin string
}

// NewExecutor creates an executor, resolving the container runtime binary.
func NewExecutor(cfg config.SandboxConfig) *Executor {
	e := &Executor{cfg: cfg}
	for _, name := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(name); err == nil {
			e.runtimeBin = name
			break
		}
	}
	return e
}

// Ready probes the container runtime. A nil return means sandboxed
// execution is available.
func (e *Executor) Ready() error {
	if e.runtimeBin == "" {
		return fmt.Errorf("no container runtime (docker/podman) found")
	}
	ctx, cancel := context.WithTimeout(context.Background(), versionProbe)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.runtimeBin, "version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("container runtime %s not usable: %w", e.runtimeBin, err)
	}
	return nil
}

// Run executes one command. The workspace directory must already exist; it
// is the only writable mount inside the container. When no runtime is
// available the command runs directly on the host in dev mode only, with
// the same timeout applied.
func (e *Executor) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if strings.TrimSpace(inv.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}
	ws := strings.TrimSpace(inv.WorkspacePath)
	if ws == "" {
		return nil, fmt.Errorf("workspace path is required")
	}
	if st, err := os.Stat(ws); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("workspace directory %s not usable", ws)
	}
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = fallbackTimeout
	}

	if e.runtimeBin == "" {
		if e.cfg.Mode != config.SandboxDev {
			return nil, fmt.Errorf("container runtime unavailable and sandbox mode is %q", e.cfg.Mode)
		}
		slog.Warn("sandbox unavailable, executing directly on host with reduced isolation",
			"workspace", ws, "mode", e.cfg.Mode)
		return e.runHost(ctx, inv.Command, ws, timeout)
	}
	return e.runContainer(ctx, inv, ws, timeout)
}

func (e *Executor) runContainer(ctx context.Context, inv Invocation, ws string, timeout time.Duration) (*Result, error) {
	name := "goclaw-" + uuid.NewString()
	args := e.containerArgs(name, ws, inv.Network, inv.Command)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newLimitedBuffer(maxOutputBytes)
	stderr := newLimitedBuffer(maxOutputBytes)
	cmd := exec.CommandContext(runCtx, e.runtimeBin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	// The container outlives the CLI client when the client is killed on
	// timeout, so removal runs on every exit path.
	e.removeContainer(name)

	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  dur,
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Sandboxed: true,
	}
	return finishResult(res, err, runCtx, ctx, e.runtimeBin+" run")
}

func (e *Executor) runHost(ctx context.Context, command, ws string, timeout time.Duration) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newLimitedBuffer(maxOutputBytes)
	stderr := newLimitedBuffer(maxOutputBytes)
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = ws
	cmd.Env = hostEnv(ws)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  dur,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}
	return finishResult(res, err, runCtx, ctx, "host exec")
}

// finishResult classifies the exec error: a deadline becomes a timed-out
// result, a non-zero exit becomes an exit code, everything else is an
// executor failure.
func finishResult(res *Result, err error, runCtx, parent context.Context, op string) (*Result, error) {
	if err == nil {
		return res, nil
	}
	if runCtx.Err() == context.DeadlineExceeded && parent.Err() == nil {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if parent.Err() != nil {
		return nil, parent.Err()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, nil
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

func (e *Executor) containerArgs(name, ws, network, command string) []string {
	netMode := "none"
	if network == NetworkEnabled {
		netMode = "bridge"
	}
	return []string{
		"run", "--name", name,
		"--network", netMode,
		"--read-only",
		"--pids-limit", strconv.Itoa(e.cfg.PidsLimit),
		"--memory", e.cfg.Memory,
		"--cpus", e.cfg.CPUs,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--user", e.cfg.User,
		"-v", ws + ":/work:rw",
		"-w", "/work",
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=" + e.cfg.TmpfsSize,
		"-e", "HOME=/work",
		"-e", "TMPDIR=/tmp",
		e.cfg.Image,
		"/bin/sh", "-c", command,
	}
}

// removeContainer force-removes the named container. Failures are logged
// and swallowed so cleanup can never change an invocation's outcome.
func (e *Executor) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.runtimeBin, "rm", "-f", name)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		slog.Warn("sandbox container cleanup failed", "container", name, "error", err)
	}
}

func hostEnv(ws string) []string {
	path := os.Getenv("PATH")
	if strings.TrimSpace(path) == "" {
		path = "/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + ws,
		"TMPDIR=" + ws,
		"LANG=C.UTF-8",
		"LC_ALL=C.UTF-8",
		"HTTP_PROXY=",
		"HTTPS_PROXY=",
		"ALL_PROXY=",
	}
}
