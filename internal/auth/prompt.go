package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNonInteractive is returned when a credential is missing and prompting
// is not allowed.
var ErrNonInteractive = errors.New("credential required but prompting is disabled")

// Prompter asks the user for a missing credential.
type Prompter interface {
	Prompt(label string) (string, error)
	PromptHidden(label string) (string, error)
}

// TerminalPrompter prompts on stderr and reads from stdin. Hidden prompts do
// not echo.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter returns a prompter bound to the process's stdin and
// stderr, so prompts never mix with a child's stdout.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stderr}
}

// IsInteractive reports whether stdin is a terminal.
func (p *TerminalPrompter) IsInteractive() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Prompt reads one visible line.
func (p *TerminalPrompter) Prompt(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptHidden reads one line without echo.
func (p *TerminalPrompter) PromptHidden(label string) (string, error) {
	_, _ = fmt.Fprintf(p.out, "%s (hidden): ", label)
	value, err := term.ReadPassword(int(p.in.Fd()))
	_, _ = fmt.Fprintln(p.out) // New line after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(value), nil
}

// NonInteractivePrompter fails every prompt. Used with --non-interactive and
// when stdin is not a terminal.
type NonInteractivePrompter struct{}

func (NonInteractivePrompter) Prompt(label string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNonInteractive, strings.ToLower(label))
}

func (NonInteractivePrompter) PromptHidden(label string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrNonInteractive, strings.ToLower(label))
}

var (
	_ Prompter = (*TerminalPrompter)(nil)
	_ Prompter = NonInteractivePrompter{}
)
