package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// ShellRunner runs exec steps through the host shell, the same os/exec
// idiom internal/gitutils and the teacher's shell connector use.
type ShellRunner struct {
	Dir string
}

// Run executes command via `sh -c`, capturing stdout/stderr separately and
// reporting the process exit code rather than treating a non-zero exit as
// a Go error — pipeline steps decide for themselves whether a failing
// command should fail the pipeline (via a later condition on exit_code).
func (r ShellRunner) Run(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if runErr == nil {
		return stdout, stderr, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return stdout, stderr, exitErr.ExitCode(), nil
	}
	return stdout, stderr, -1, runErr
}
