package client

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ProcessResult is the captured outcome of one external tool invocation.
// ExitCode is nil when the process never ran (missing binary, spawn failure)
// or was killed before exiting normally.
type ProcessResult struct {
	Succeeded bool
	Stdout    string
	Stderr    string
	ExitCode  *int
	TimedOut  bool
	Err       error
}

// Runner executes external command-line tools. A non-zero exit is reported
// in the result, never as a Go error.
type Runner interface {
	Run(ctx context.Context, command string, args ...string) ProcessResult
}

// ProcessRunner runs tools with os/exec, applying an optional per-call
// timeout on top of the caller's context.
type ProcessRunner struct {
	timeout time.Duration
}

func NewProcessRunner(timeout time.Duration) *ProcessRunner {
	return &ProcessRunner{timeout: timeout}
}

func (r *ProcessRunner) Run(ctx context.Context, command string, args ...string) ProcessResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children that inherit the pipes must not keep Wait blocked after a kill.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	result := ProcessResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		code := 0
		result.ExitCode = &code
		result.Succeeded = true
		return result
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			result.ExitCode = &code
		}
	} else {
		result.Err = err
		if strings.TrimSpace(result.Stderr) == "" {
			result.Stderr = err.Error()
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.Err = ctxErr
		result.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
	}
	return result
}

// RunOrError runs command and converts any failure into a *ToolError
// carrying the trimmed stderr. On success it returns stdout.
func RunOrError(ctx context.Context, runner Runner, command string, args ...string) (string, error) {
	result := runner.Run(ctx, command, args...)
	if result.Succeeded {
		return result.Stdout, nil
	}
	return "", ErrorFromResult(command, result)
}

// Probe reports whether command is installed. Exit codes 0 and 1 both count:
// plenty of tools exit 1 on --help, which still proves they exist.
func Probe(ctx context.Context, runner Runner, command string, args ...string) bool {
	result := runner.Run(ctx, command, args...)
	if result.ExitCode == nil {
		return false
	}
	return *result.ExitCode == 0 || *result.ExitCode == 1
}

// ErrorFromResult builds the error for a failed invocation.
func ErrorFromResult(tool string, result ProcessResult) *ToolError {
	stderr := strings.TrimSpace(result.Stderr)
	switch {
	case result.TimedOut:
		return &ToolError{Kind: KindTimeout, Tool: tool, Stderr: stderr, Message: tool + " timed out", cause: result.Err}
	case result.Err != nil && errors.Is(result.Err, context.Canceled):
		return &ToolError{Kind: KindToolInvocation, Tool: tool, Stderr: stderr, Message: tool + " canceled", cause: result.Err}
	}
	message := stderr
	if message == "" {
		message = "failed to run " + tool
	}
	return &ToolError{Kind: KindToolInvocation, Tool: tool, Stderr: stderr, Message: message, cause: result.Err}
}
