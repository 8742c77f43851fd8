package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	vierrors "github.com/systmms/vault-inject/internal/errors"
	"github.com/systmms/vault-inject/internal/logging"
	"github.com/systmms/vault-inject/internal/secure"
)

// Shell runs ExecOptions.Shell commands as Shell -c <command>.
const Shell = "sh"

// Executor handles running commands with injected secret environment
// variables
type Executor struct {
	logger *logging.Logger
}

// New creates a new executor
func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger: logger,
	}
}

// ExecOptions configures command execution
type ExecOptions struct {
	Command     []string    // Command and arguments to run directly
	Shell       string      // Command line run through sh -c; takes precedence over Command
	Environment *secure.Env // Injected variables, merged over the inherited environment
	PrintVars   bool        // Print injected variables (values masked) before running
	WorkingDir  string      // Working directory for the command

	Stdin  io.Reader // Defaults to os.Stdin
	Stdout io.Writer // Defaults to os.Stdout
	Stderr io.Writer // Defaults to os.Stderr
}

// Argv returns the program and arguments to run.
func (o ExecOptions) Argv() []string {
	if strings.TrimSpace(o.Shell) != "" {
		return []string{Shell, "-c", o.Shell}
	}
	return o.Command
}

// Exec runs the command and waits for it. A child that exits non-zero is
// reported as errors.ExitError carrying its status.
func (e *Executor) Exec(ctx context.Context, options ExecOptions) error {
	argv := options.Argv()
	if err := ValidateCommand(argv); err != nil {
		return err
	}

	env := options.Environment
	if env == nil {
		env = secure.NewEnv()
	}
	environ, wipe, err := env.Environ(os.Environ())
	if err != nil {
		return vierrors.UserError{
			Message: "Failed to build environment",
			Details: err.Error(),
			Err:     err,
		}
	}
	defer wipe()

	stdin, stdout, stderr := options.Stdin, options.Stdout, options.Stderr
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	// Printed to stderr so it never mixes with the child's output
	if options.PrintVars {
		if err := printEnvironment(stderr, env); err != nil {
			return err
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = environ
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}

	e.logger.Debug("Executing command: %s", strings.Join(argv, " "))
	e.logger.Debug("Environment variables injected: %d", env.Len())

	if err := cmd.Start(); err != nil {
		return vierrors.CommandError{
			Command:    strings.Join(argv, " "),
			Message:    err.Error(),
			Suggestion: "Check that the command exists and is executable",
		}
	}
	wipe()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Killed by a signal
				code = 1
			}
			return vierrors.ExitError{Code: code}
		}
		return vierrors.CommandError{
			Command: strings.Join(argv, " "),
			Message: err.Error(),
		}
	}

	return nil
}

// printEnvironment displays the injected variables with masked values
func printEnvironment(w io.Writer, env *secure.Env) error {
	names := env.Names()
	if len(names) == 0 {
		_, _ = fmt.Fprintln(w, "No environment variables injected")
		return nil
	}

	_, _ = fmt.Fprintf(w, "Injecting %d environment variables:\n", len(names))
	for _, name := range names {
		value, _, err := env.Reveal(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "  %s=%s\n", name, maskValue(value))
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

// maskValue masks a secret value for display
func maskValue(value string) string {
	if len(value) == 0 {
		return "(empty)"
	}

	// Fully mask very short values
	if len(value) <= 3 {
		return strings.Repeat("*", len(value))
	}

	// Show first and last characters for short values
	if len(value) <= 8 {
		return value[:1] + strings.Repeat("*", len(value)-2) + value[len(value)-1:]
	}

	// For long values, show first 3 and last 2 with asterisks in between
	return value[:3] + strings.Repeat("*", 8) + value[len(value)-2:]
}

// ValidateCommand checks that a command was given and can be found
func ValidateCommand(command []string) error {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return vierrors.UserError{
			Message:    "No command specified",
			Suggestion: "Provide a command with --command or after -- (e.g., vault-inject -s DB_PASSWORD=secret/app/db/password -- ./server)",
		}
	}

	if _, err := exec.LookPath(command[0]); err != nil {
		return vierrors.WrapCommandNotFound(command[0], err)
	}
	return nil
}
