package rclone

import (
	"io"
	"os/exec"

	"github.com/driftlock/driftlock/pkg/errors"
)

// Runner executes one blocking rclone invocation. It exists as an
// interface so the orchestrator can be tested without a real binary.
type Runner interface {
	// Run executes binary with args, duplicating combined stdout and
	// stderr to output. It returns a SubprocessError carrying the exit
	// code when the tool exits non-zero.
	Run(binary string, args []string, output io.Writer, logPath string) error
}

// ExecRunner runs the real binary via os/exec.
type ExecRunner struct{}

// Run implements Runner. The child's stdout and stderr share a single
// writer, so the transcript in the log interleaves the same way it did
// on the console.
func (ExecRunner) Run(binary string, args []string, output io.Writer, logPath string) error {
	cmd := exec.Command(binary, args...)
	cmd.Stdout = output
	cmd.Stderr = output

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return errors.SubprocessError{
			ExitCode: exitErr.ExitCode(),
			LogPath:  logPath,
		}
	}
	return errors.WithContext(err, "start sync tool")
}
