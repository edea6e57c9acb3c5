package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goclaw/goclaw/internal/sandbox"
)

// CommandRunner executes a shell command in an isolated environment.
// Implemented by sandbox.Executor.
type CommandRunner interface {
	Run(ctx context.Context, inv sandbox.Invocation) (*sandbox.Result, error)
}

// ShellTool executes shell commands inside the sandbox. Isolation comes from
// the container (no network, read-only root, workspace-only mount), not from
// command pattern matching.
type ShellTool struct {
	runner    CommandRunner
	workspace string
	timeout   time.Duration
}

// NewShellTool creates a shell tool bound to one workspace directory.
func NewShellTool(runner CommandRunner, workspace string, timeout time.Duration) *ShellTool {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ShellTool{runner: runner, workspace: workspace, timeout: timeout}
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Tier() int    { return TierHighRisk }

func (t *ShellTool) Description() string {
	return "Execute a shell command in an isolated sandbox and return its output. The workspace directory is the only writable path. Network access is off unless explicitly requested."
}

func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Optional timeout in seconds. May only shorten the configured limit.",
			},
			"network": map[string]any{
				"type":        "boolean",
				"description": "Allow outbound network access for this command. Default false.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	command := GetString(params, "command", "")
	if strings.TrimSpace(command) == "" {
		return "Error: command is required", nil
	}

	timeout := t.timeout
	if secs := GetInt(params, "timeout_seconds", 0); secs > 0 {
		if d := time.Duration(secs) * time.Second; d < timeout {
			timeout = d
		}
	}

	network := sandbox.NetworkNone
	if GetBool(params, "network", false) {
		network = sandbox.NetworkEnabled
	}

	res, err := t.runner.Run(ctx, sandbox.Invocation{
		Command:       command,
		WorkspacePath: WorkspaceFrom(ctx, t.workspace),
		Timeout:       timeout,
		Network:       network,
	})
	if err != nil {
		return fmt.Sprintf("Error executing command: %v", err), nil
	}

	var result strings.Builder
	if res.Stdout != "" {
		result.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(res.Stderr)
	}

	if res.TimedOut {
		return fmt.Sprintf("Error: command timed out after %v\n%s", timeout, result.String()), nil
	}

	if res.ExitCode != 0 {
		result.WriteString(fmt.Sprintf("\nExit code: %d", res.ExitCode))
	}

	if res.Truncated {
		result.WriteString("\n[output truncated]")
	}

	if result.Len() == 0 {
		return "(no output)", nil
	}

	return result.String(), nil
}
