// Package exec provides abstractions for command execution.
// This package enables testable code by allowing filter commands to be mocked.
package exec

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// CommandExecutor defines an interface for executing commands.
// This abstraction allows for mocking filter behavior in tests.
type CommandExecutor interface {
	// Execute runs a command with stdin attached to the given reader.
	// Returns stdout, stderr, and any error that occurred.
	Execute(ctx context.Context, stdin io.Reader, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

// RealCommandExecutor executes actual commands using os/exec.
// This is the production implementation.
type RealCommandExecutor struct{}

// Execute runs an actual command. The process is killed if ctx is done
// before it exits.
func (r *RealCommandExecutor) Execute(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultExecutor returns the standard production executor.
// This is used as the default when no executor is injected.
func DefaultExecutor() CommandExecutor {
	return &RealCommandExecutor{}
}
