package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Result captures one converter invocation. A non-zero ExitCode is a stage
// failure for the calling pipeline, not a transport error.
type Result struct {
	Output   []byte
	Stderr   string
	ExitCode int
}

// Ok reports whether the process exited cleanly.
func (r *Result) Ok() bool {
	return r != nil && r.ExitCode == 0
}

// Runner invokes an external conversion executable with bytes on stdin and
// collects stdout/stderr. Implementations must honour context cancellation.
type Runner interface {
	Run(ctx context.Context, executable string, input []byte, args ...string) (*Result, error)
}

// ExecRunner shells out to the configured executables.
type ExecRunner struct{}

// NewExecRunner returns a process-backed runner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the binary. The returned error is reserved for invocation
// problems (missing binary, timeout); converter failures surface through
// Result.ExitCode and Result.Stderr.
func (r *ExecRunner) Run(ctx context.Context, executable string, input []byte, args ...string) (*Result, error) {
	if executable == "" {
		return nil, fmt.Errorf("converter executable not configured")
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("converter %s: %w", executable, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{
				Output:   stdout.Bytes(),
				Stderr:   stderr.String(),
				ExitCode: exitErr.ExitCode(),
			}, nil
		}
		return nil, fmt.Errorf("converter %s: %w", executable, err)
	}

	return &Result{Output: stdout.Bytes(), Stderr: stderr.String(), ExitCode: 0}, nil
}
