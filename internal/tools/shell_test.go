package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goclaw/goclaw/internal/sandbox"
)

// fakeRunner records the invocation and plays back a scripted result.
type fakeRunner struct {
	res  *sandbox.Result
	err  error
	last sandbox.Invocation
}

func (f *fakeRunner) Run(ctx context.Context, inv sandbox.Invocation) (*sandbox.Result, error) {
	f.last = inv
	return f.res, f.err
}

func TestShellToolForwardsInvocation(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{Stdout: "ok\n"}}
	tool := NewShellTool(runner, "/tmp/ws", 30*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{"command": "echo ok"})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result != "ok\n" {
		t.Errorf("expected stdout passthrough, got %q", result)
	}
	if runner.last.Command != "echo ok" {
		t.Errorf("command not forwarded: %q", runner.last.Command)
	}
	if runner.last.WorkspacePath != "/tmp/ws" {
		t.Errorf("workspace not forwarded: %q", runner.last.WorkspacePath)
	}
	if runner.last.Timeout != 30*time.Second {
		t.Errorf("expected configured timeout, got %v", runner.last.Timeout)
	}
	if runner.last.Network != sandbox.NetworkNone {
		t.Errorf("expected network disabled, got %q", runner.last.Network)
	}
}

func TestShellToolNetworkOptIn(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{Stdout: "fetched"}}
	tool := NewShellTool(runner, "/tmp/ws", 30*time.Second)

	if _, err := tool.Execute(context.Background(), map[string]any{"command": "curl example.com", "network": true}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if runner.last.Network != sandbox.NetworkEnabled {
		t.Errorf("expected network enabled on opt-in, got %q", runner.last.Network)
	}
}

func TestShellToolTimeoutParamOnlyShortens(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{}}
	tool := NewShellTool(runner, "/tmp/ws", 30*time.Second)

	// Shorter than configured: honored
	tool.Execute(context.Background(), map[string]any{"command": "sleep 1", "timeout_seconds": 5})
	if runner.last.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", runner.last.Timeout)
	}

	// Longer than configured: clamped to the configured limit
	tool.Execute(context.Background(), map[string]any{"command": "sleep 1", "timeout_seconds": 3600})
	if runner.last.Timeout != 30*time.Second {
		t.Errorf("expected clamp to 30s, got %v", runner.last.Timeout)
	}
}

func TestShellToolMissingCommand(t *testing.T) {
	tool := NewShellTool(&fakeRunner{}, "/tmp/ws", time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{"command": "   "})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.Contains(result, "Error: command is required") {
		t.Errorf("expected missing command error, got %q", result)
	}
}

func TestShellToolExecutorFailureIsResultString(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("workspace directory /x not usable")}
	tool := NewShellTool(runner, "/x", time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{"command": "ls"})
	if err != nil {
		t.Fatalf("executor failures must become result strings, got error: %v", err)
	}
	if !strings.Contains(result, "Error executing command") {
		t.Errorf("expected wrapped executor error, got %q", result)
	}
}

func TestShellToolStderrAndExitCode(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{
		Stdout:   "partial",
		Stderr:   "boom",
		ExitCode: 3,
	}}
	tool := NewShellTool(runner, "/tmp/ws", time.Second)

	result, _ := tool.Execute(context.Background(), map[string]any{"command": "false"})
	if !strings.Contains(result, "partial") {
		t.Errorf("stdout missing: %q", result)
	}
	if !strings.Contains(result, "STDERR:\nboom") {
		t.Errorf("stderr section missing: %q", result)
	}
	if !strings.Contains(result, "Exit code: 3") {
		t.Errorf("exit code missing: %q", result)
	}
}

func TestShellToolNoOutput(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{}}
	tool := NewShellTool(runner, "/tmp/ws", time.Second)

	result, _ := tool.Execute(context.Background(), map[string]any{"command": "true"})
	if result != "(no output)" {
		t.Errorf("expected '(no output)', got %q", result)
	}
}

func TestShellToolTimeoutResult(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{
		Stdout:   "got this far",
		TimedOut: true,
	}}
	tool := NewShellTool(runner, "/tmp/ws", 2*time.Second)

	result, err := tool.Execute(context.Background(), map[string]any{"command": "sleep 10"})
	if err != nil {
		t.Fatalf("timeouts must become result strings, got error: %v", err)
	}
	if !strings.Contains(result, "Error: command timed out after 2s") {
		t.Errorf("expected timeout message, got %q", result)
	}
	if !strings.Contains(result, "got this far") {
		t.Errorf("expected partial output preserved, got %q", result)
	}
}

func TestShellToolTruncationMarker(t *testing.T) {
	runner := &fakeRunner{res: &sandbox.Result{
		Stdout:    strings.Repeat("x", 100),
		Truncated: true,
	}}
	tool := NewShellTool(runner, "/tmp/ws", time.Second)

	result, _ := tool.Execute(context.Background(), map[string]any{"command": "yes"})
	if !strings.Contains(result, "[output truncated]") {
		t.Errorf("expected truncation marker, got %q", result)
	}
}
