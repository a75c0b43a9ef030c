package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/stellarlinkco/aide/internal/tool"
)

const defaultExecTimeout = 60 * time.Second

// ShellExec runs a shell command. The command string has already been
// vetted by the sandbox before execution reaches this point.
type ShellExec struct{}

func (ShellExec) Name() string { return "shell_exec" }

func (ShellExec) Description() string {
	return "Execute a shell command and return its stdout/stderr output. Commands are subject to sandbox restrictions."
}

func (ShellExec) Risk() tool.RiskLevel { return tool.RiskHigh }

func (ShellExec) Mutating() bool { return true }

func (ShellExec) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_directory": map[string]any{
				"type":        "string",
				"description": "Working directory for the command (default: user home)",
			},
		},
		"required": []string{"command"},
	}
}

func (ShellExec) Execute(ctx context.Context, params map[string]any, tc tool.Context) tool.Result {
	command := stringParam(params, "command")
	if command == "" {
		return tool.Fail("Command is required")
	}

	cwd := stringParam(params, "working_directory")
	if cwd == "" {
		cwd = tc.WorkingDir
	}
	if cwd == "" {
		cwd, _ = os.UserHomeDir()
	}
	cwd = expandHome(cwd)
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		return tool.Fail(fmt.Sprintf("Working directory not found: %s", cwd))
	}

	timeout := defaultExecTimeout
	if tc.MaxExecutionTime > 0 {
		timeout = time.Duration(tc.MaxExecutionTime) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return tool.Fail(fmt.Sprintf("Command timed out after %s", timeout))
	}

	stdoutStr := stdout.String()
	stderrStr := stderr.String()
	if max := tc.MaxOutputSize; max > 0 {
		if len(stdoutStr) > max {
			stdoutStr = stdoutStr[:max] + "\n... (output truncated)"
		}
		if len(stderrStr) > max/4 {
			stderrStr = stderrStr[:max/4] + "\n... (stderr truncated)"
		}
	}

	var parts []string
	if stdoutStr != "" {
		parts = append(parts, stdoutStr)
	}
	if stderrStr != "" {
		parts = append(parts, "[STDERR]\n"+stderrStr)
	}
	output := strings.Join(parts, "\n")
	if output == "" {
		output = "(no output)"
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return tool.Fail(fmt.Sprintf("Execution error: %v", err))
		}
	}

	if exitCode != 0 {
		return tool.OKData(fmt.Sprintf("[Exit code: %d]\n%s", exitCode, output),
			map[string]any{"exit_code": exitCode})
	}
	return tool.OKData(output, map[string]any{"exit_code": 0})
}
